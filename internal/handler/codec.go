package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// errBadRequest marks request bodies that could not be decoded.
var errBadRequest = errors.New("malformed request body")

// decodeObject reads a JSON object body, calling fn for every key.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.Wrap(errBadRequest, "empty body")
	}
	d := jx.DecodeBytes(body)
	if err := d.Obj(fn); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// optStr decodes a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return decimal.Zero, d.Null()
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(strings.Trim(n.String(), `"`))
}

// writeJSON encodes a response body with enc.
func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	enc(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes {"code":status,"message":msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorLines(w, status, msg, nil)
}

// writeErrorLines writes an error body with one entry per offending cart
// line or request field.
func writeErrorLines(w http.ResponseWriter, status int, msg string, lines []string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
			if len(lines) > 0 {
				e.Field("errors", func(e *jx.Encoder) { encodeStrings(e, lines) })
			}
		})
	})
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, v := range values {
			e.Str(v)
		}
	})
}

// encodeMoney writes an amount as a JSON number with two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}
