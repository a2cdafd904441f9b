package models

import "fmt"

// Element is the set of buffer element types the pipeline moves between
// stages: float32 for model data, uint8 for pixel buffers.
type Element interface {
	~float32 | ~uint8
}

// Tensor is a shaped numeric buffer, the interchange format between pipeline
// stages. A tensor is owned by exactly one stage at a time: the producer
// hands it to the consumer and must not touch it afterwards.
type Tensor[T Element] struct {
	Shape []int64
	Data  []T
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor[T Element](shape ...int64) *Tensor[T] {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return &Tensor[T]{
		Shape: shape,
		Data:  make([]T, n),
	}
}

// TensorOf wraps existing data in a tensor after checking it matches shape.
func TensorOf[T Element](data []T, shape ...int64) (*Tensor[T], error) {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	if int64(len(data)) != n {
		return nil, fmt.Errorf("tensor data length %d does not match shape %v", len(data), shape)
	}
	return &Tensor[T]{Shape: shape, Data: data}, nil
}

// Dim returns the size of dimension i, or 0 if out of range.
func (t *Tensor[T]) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return int(t.Shape[i])
}

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int {
	return len(t.Shape)
}
