package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rudp/pkg/rudp"
)

// Retry configuration for blob operations, unchanged from the pattern this
// package's polling/backoff helpers were adapted from.
const (
	InitialRetryDelay = 50 * time.Millisecond // Starting delay between retries
	MaxRetryDelay     = 3 * time.Second       // Maximum delay between retries
	BackoffFactor     = 1.5                   // Multiplier for exponential backoff
)

// ErrBlobTransportClosed is returned by SendTo once Close has been called
// on the BlobMultiplexer, and by BlobError (and so by the blob helpers
// below) when Azure reports the backing container or account unavailable.
var ErrBlobTransportClosed = errors.New("transport: blob transport closed")

// BlobMultiplexer relays rudp datagrams through a pair of Azure Blob
// Storage blobs — one for each direction — for use when a peer sits behind
// a NAT or firewall that blocks direct UDP. Exactly one peer endpoint is
// addressable through a given blob pair, so the rudp.Endpoint passed to
// SendTo is accepted for interface compatibility but not consulted:
// everything written goes out the one write blob, and everything read
// back is attributed to the single Peer rudp.Endpoint this multiplexer was
// constructed with.
type BlobMultiplexer struct {
	id        uuid.UUID
	readBlob  azblob.BlockBlobURL
	writeBlob azblob.BlockBlobURL
	peer      rudp.Endpoint
	mux       onDatagram

	sendCh chan []byte
	closed chan struct{}
}

// NewBlobMultiplexer creates a relay over the given blobs. peer is the
// endpoint OnDatagram reports as the source of everything received over
// this relay. rudp matches a Responder's rendezvous entry against it and
// sends the Responder's handshake reply to it; other packets are routed by
// connection id.
func NewBlobMultiplexer(readBlob, writeBlob azblob.BlockBlobURL, peer rudp.Endpoint) *BlobMultiplexer {
	return &BlobMultiplexer{
		id:        uuid.New(),
		readBlob:  readBlob,
		writeBlob: writeBlob,
		peer:      peer,
		sendCh:    make(chan []byte, 256),
		closed:    make(chan struct{}),
	}
}

// ID returns the relay's session identifier, used to label it in a CLI's
// connection table.
func (b *BlobMultiplexer) ID() uuid.UUID { return b.id }

// Bind attaches the rudp.Multiplexer this relay feeds and starts its send
// and receive loops.
func (b *BlobMultiplexer) Bind(mux *rudp.Multiplexer) {
	b.mux = mux
	go b.sendLoop()
	go b.receiveLoop()
}

// SendTo enqueues datagram for delivery over the write blob. It never
// blocks the caller on the network; the send loop serializes actual blob
// uploads, since a blob can hold only one unread payload at a time.
func (b *BlobMultiplexer) SendTo(ctx context.Context, datagram []byte, to rudp.Endpoint) error {
	select {
	case b.sendCh <- datagram:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return ErrBlobTransportClosed
	}
}

// Close stops both loops. Safe to call once.
func (b *BlobMultiplexer) Close() error {
	close(b.closed)
	return nil
}

func (b *BlobMultiplexer) sendLoop() {
	ctx := context.Background()
	for {
		select {
		case <-b.closed:
			return
		case datagram := <-b.sendCh:
			if err := WriteBlob(ctx, b.writeBlob, datagram); err != nil {
				log.Debug().Err(err).Msg("transport: blob send failed")
			}
		}
	}
}

func (b *BlobMultiplexer) receiveLoop() {
	ctx := context.Background()
	for {
		select {
		case <-b.closed:
			return
		default:
		}
		data, err := WaitForData(ctx, b.readBlob)
		if err != nil {
			if errors.Is(err, ErrBlobTransportClosed) {
				return
			}
			log.Debug().Err(err).Msg("transport: blob receive failed")
			continue
		}
		if len(data) == 0 {
			continue
		}
		b.mux.OnDatagram(data, b.peer)
	}
}

// WriteBlob uploads data to blobURL once it observes the blob empty,
// retrying with exponential backoff while the blob is occupied by an
// unread payload or the upload itself fails.
func WriteBlob(ctx context.Context, blobURL azblob.BlockBlobURL, data []byte) error {
	retryDelay := InitialRetryDelay

	for {
		isEmpty, err := IsBlobEmpty(ctx, blobURL)
		if err != nil {
			return err
		}

		if !isEmpty {
			retryDelay, err = WaitDelay(ctx, retryDelay)
			if err != nil {
				return err
			}
			continue
		}

		retryDelay = InitialRetryDelay

		_, err = blobURL.Upload(
			ctx,
			bytes.NewReader(data),
			azblob.BlobHTTPHeaders{ContentType: "application/octet-stream"},
			azblob.Metadata{},
			azblob.BlobAccessConditions{},
			azblob.DefaultAccessTier,
			nil,
			azblob.ClientProvidedKeyOptions{},
			azblob.ImmutabilityPolicyOptions{},
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			retryDelay, err = WaitDelay(ctx, retryDelay)
			if err != nil {
				return err
			}
			continue
		}

		return nil
	}
}

// WaitForData polls blobURL until it holds a payload, downloads and clears
// it, and returns the payload. Retries with exponential backoff while the
// blob is empty; a failed properties, download or body-read request ends
// the call with that error.
func WaitForData(ctx context.Context, blobURL azblob.BlockBlobURL) ([]byte, error) {
	retryDelay := InitialRetryDelay

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		isEmpty, err := IsBlobEmpty(ctx, blobURL)
		if err != nil {
			return nil, err
		}

		if isEmpty {
			retryDelay, err = WaitDelay(ctx, retryDelay)
			if err != nil {
				return nil, err
			}
			continue
		}

		retryDelay = InitialRetryDelay

		response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			return nil, BlobError(err)
		}

		bodyReader := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
		data, err := io.ReadAll(bodyReader)
		bodyReader.Close()
		if err != nil {
			return nil, err
		}

		if err := ClearBlob(ctx, blobURL); err != nil {
			return nil, err
		}

		return data, nil
	}
}

// IsBlobEmpty reports whether blobURL currently holds zero bytes.
func IsBlobEmpty(ctx context.Context, blobURL azblob.BlockBlobURL) (bool, error) {
	props, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return false, BlobError(err)
	}
	return props.ContentLength() == 0, nil
}

// ClearBlob empties blobURL by uploading a zero-length payload, retrying
// with exponential backoff until it succeeds.
func ClearBlob(ctx context.Context, blobURL azblob.BlockBlobURL) error {
	retryDelay := InitialRetryDelay

	for {
		_, err := blobURL.Upload(
			ctx,
			bytes.NewReader([]byte{}),
			azblob.BlobHTTPHeaders{ContentType: "application/octet-stream"},
			azblob.Metadata{},
			azblob.BlobAccessConditions{},
			azblob.DefaultAccessTier,
			nil,
			azblob.ClientProvidedKeyOptions{},
			azblob.ImmutabilityPolicyOptions{},
		)
		if err == nil {
			return nil
		}

		retryDelay, err = WaitDelay(ctx, retryDelay)
		if err != nil {
			return err
		}
	}
}

// BlobError maps an Azure Blob Storage error to ErrBlobTransportClosed when
// the error indicates the backing container is gone or being deleted (or
// the account is still being created), returns context.Canceled for any
// error that wraps it, and passes every other error through unchanged.
func BlobError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if storageErr, ok := err.(azblob.StorageError); ok {
		switch storageErr.ServiceCode() {
		case azblob.ServiceCodeContainerNotFound, azblob.ServiceCodeContainerBeingDeleted, azblob.ServiceCodeAccountBeingCreated:
			return ErrBlobTransportClosed
		}
	}
	return err
}

// WaitDelay sleeps for retryDelay and returns the next delay, multiplied
// by BackoffFactor and capped at MaxRetryDelay.
func WaitDelay(ctx context.Context, retryDelay time.Duration) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(retryDelay):
		next := time.Duration(float64(retryDelay) * BackoffFactor)
		if next > MaxRetryDelay {
			next = MaxRetryDelay
		}
		return next, nil
	}
}
