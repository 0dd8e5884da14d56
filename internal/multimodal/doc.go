// Package multimodal answers questions about uploaded files through a
// text-only assistant backend. The file is reduced to document text, that
// text is ingested into the backend's documents, and the question is sent
// with an excerpt of it attached.
package multimodal
