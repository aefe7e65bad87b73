// Package storage provides the object store used for uploads, transient
// workspace artifacts, and result documents, plus the key layout they share.
package storage
