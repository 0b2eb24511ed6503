package domain

import "sync"

type blobHandle struct {
	url    string
	once   sync.Once
	revoke func()
}

func (b *blobHandle) URL() string { return b.url }

func (b *blobHandle) Release() {
	b.once.Do(func() {
		if b.revoke != nil {
			b.revoke()
		}
	})
}

// NewBlobHandle wraps a transient URL and its revocation callback. Release
// runs revoke at most once, so every exit path may call it safely.
func NewBlobHandle(url string, revoke func()) BlobHandle {
	return &blobHandle{url: url, revoke: revoke}
}
