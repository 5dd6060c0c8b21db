// Package idempotency de-duplicates order creation requests that carry the
// same Idempotency-Key. The first request claims the key; repeats either get
// the stored response or, while the first is still running, ErrInProgress.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DefaultTTL is how long a key and its response are remembered.
const DefaultTTL = 24 * time.Hour

const keyFormat = "idem:order:create:%s"

// ErrInProgress is returned by Begin while another request holds the key.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// Response is a stored HTTP response.
type Response struct {
	Status int
	Body   []byte
}

// Store records idempotency keys.
type Store interface {
	// Begin claims key. It returns (nil, nil) when the caller now owns the
	// key, the stored response when the key already completed, or
	// ErrInProgress.
	Begin(ctx context.Context, key string) (*Response, error)
	// Complete stores the response for a claimed key.
	Complete(ctx context.Context, key string, resp Response) error
	// Abort releases a claimed key without storing a response, so the request
	// may be retried.
	Abort(ctx context.Context, key string) error
}

func storageKey(key string) string {
	return fmt.Sprintf(keyFormat, key)
}

const pendingMarker = "pending"

func encodeResponse(resp Response) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Int(resp.Status)
	e.FieldStart("body")
	e.Base64(resp.Body)
	e.ObjEnd()
	return e.Bytes()
}

func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Int()
			resp.Status = v
			return err
		case "body":
			v, err := d.Base64()
			resp.Body = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode stored response")
	}
	return &resp, nil
}
