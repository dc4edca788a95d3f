package proxy

import "sync"

const relayBufferSize = 32 * 1024

type relayBuffer = [relayBufferSize]byte

// relayBuffers holds *relayBuffer; storing array pointers keeps Put free of
// allocations.
var relayBuffers = sync.Pool{
	New: func() any { return new(relayBuffer) },
}

func getBuffer() *relayBuffer {
	return relayBuffers.Get().(*relayBuffer)
}

func putBuffer(b *relayBuffer) {
	relayBuffers.Put(b)
}
