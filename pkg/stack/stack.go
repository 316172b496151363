// Package stack is a LIFO used for iterative walks over on-disk trees.
package stack

import (
	"github.com/pkg/errors"
)

var ErrEmptyStack = errors.New("empty stack")

type Stack[T any] struct {
	s []T
}

func New[T any](initialSize int) *Stack[T] {
	return &Stack[T]{make([]T, 0, initialSize)}
}

func (s *Stack[T]) Push(values ...T) {
	s.s = append(s.s, values...)
}

func (s *Stack[T]) Pop() (T, error) {
	var value T
	l := len(s.s)
	if l == 0 {
		return value, ErrEmptyStack
	}

	value, s.s = s.s[l-1], s.s[:l-1]
	return value, nil
}

func (s *Stack[T]) Size() int {
	return len(s.s)
}
