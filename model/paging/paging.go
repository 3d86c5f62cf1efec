// Package paging defines page requests and responses for listing queries.
package paging

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for page number < 1 or size <= 0
var ErrInvalidRequest = errors.New("paging: invalid request")

// Request represents a 1-based page request
type Request struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

// NewRequest creates a page request
func NewRequest(number, size int) Request {
	return Request{Number: number, Size: size}
}

// Validate checks request bounds
func (r Request) Validate() error {
	if r.Number < 1 {
		return fmt.Errorf("%w: page number %d", ErrInvalidRequest, r.Number)
	}
	if r.Size <= 0 {
		return fmt.Errorf("%w: page size %d", ErrInvalidRequest, r.Size)
	}
	return nil
}

// Page represents a page of items with the total hit count
type Page[T any] struct {
	Items     []T `json:"items"`
	Number    int `json:"number"`
	Size      int `json:"size"`
	TotalHits int `json:"totalHits"`
}

// TotalPages returns ceil(TotalHits/Size)
func (p *Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.TotalHits + p.Size - 1) / p.Size
}

// Slice returns the requested page of already sorted items
func Slice[T any](items []T, request Request) (*Page[T], error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	ret := &Page[T]{Number: request.Number, Size: request.Size, TotalHits: len(items)}
	start := (request.Number - 1) * request.Size
	if start >= len(items) {
		ret.Items = []T{}
		return ret, nil
	}
	end := start + request.Size
	if end > len(items) {
		end = len(items)
	}
	ret.Items = append([]T{}, items[start:end]...)
	return ret, nil
}
