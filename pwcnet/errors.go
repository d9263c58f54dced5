package pwcnet

import "errors"

var (
	// ErrShapeMismatch is returned when the two frames of a pair, or a
	// buffer and its declared shape, disagree.
	ErrShapeMismatch = errors.New("pwcnet: shape mismatch")
	// ErrChannels is returned when an image tensor is not 3-channel.
	ErrChannels = errors.New("pwcnet: image must have 3 channels")
	// ErrMissingWeights is returned when the weight artifact or one of its
	// tensors cannot be found.
	ErrMissingWeights = errors.New("pwcnet: missing weights")
	// ErrWeightShape is returned when a stored tensor does not match the
	// architecture.
	ErrWeightShape = errors.New("pwcnet: weight shape mismatch")
	// ErrWeightDType is returned for stored tensors that are not float32.
	ErrWeightDType = errors.New("pwcnet: weight dtype must be F32")
	// ErrNotLoaded is returned by Estimate before LoadModel succeeded.
	ErrNotLoaded = errors.New("pwcnet: model not loaded")
)
