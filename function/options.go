// Package function: finalize-time configuration via functional options.

package function

import "fmt"

// ADMode selects the direction the automatic-differentiation engine favors
// when a Jacobian is assembled from the graph.
type ADMode uint8

const (
	// ForwardMode seeds one tangent direction per input nonzero.
	ForwardMode ADMode = iota
	// ReverseMode seeds one adjoint direction per output nonzero.
	ReverseMode
)

// JacobianMode selects how Jacobian and Gradient build their result.
type JacobianMode uint8

const (
	// GraphJacobian assembles symbolic partial expressions from the graph.
	GraphJacobian JacobianMode = iota
	// NumericJacobian wraps the function in a central finite-difference
	// kernel; no symbolic rules are consulted.
	NumericJacobian
)

// Options configures a function at Finalize time.
type Options struct {
	// ADMode steers graph-mode Jacobian assembly. Default ForwardMode.
	ADMode ADMode
	// JacobianMode selects graph or numeric Jacobians. Default GraphJacobian.
	JacobianMode JacobianMode
	// ForwardDirections is the number of simultaneous tangent direction
	// slots allocated for Evaluate. Default 1.
	ForwardDirections int
	// AdjointDirections is the number of simultaneous adjoint direction
	// slots allocated for Evaluate. Default 1.
	AdjointDirections int
	// FDStep is the central-difference step of the numeric Jacobian kernel.
	// Default 1e-6.
	FDStep float64
}

// DefaultOptions returns the configuration used when no options are given.
func DefaultOptions() Options {
	return Options{
		ADMode:            ForwardMode,
		JacobianMode:      GraphJacobian,
		ForwardDirections: 1,
		AdjointDirections: 1,
		FDStep:            1e-6,
	}
}

// validate rejects configurations no evaluation could honor.
func (o Options) validate() error {
	if o.ForwardDirections < 0 || o.AdjointDirections < 0 {
		return fmt.Errorf("%w: negative direction count", ErrShapeMismatch)
	}
	if o.FDStep <= 0 {
		return fmt.Errorf("%w: finite-difference step %g", ErrShapeMismatch, o.FDStep)
	}

	return nil
}

// Option mutates Options; pass to Finalize.
type Option func(*Options)

// WithADMode selects the seeding direction of graph-mode Jacobians.
func WithADMode(m ADMode) Option { return func(o *Options) { o.ADMode = m } }

// WithJacobianMode selects graph or numeric Jacobian construction.
func WithJacobianMode(m JacobianMode) Option { return func(o *Options) { o.JacobianMode = m } }

// WithForwardDirections sets the allocated tangent direction slots.
func WithForwardDirections(n int) Option { return func(o *Options) { o.ForwardDirections = n } }

// WithAdjointDirections sets the allocated adjoint direction slots.
func WithAdjointDirections(n int) Option { return func(o *Options) { o.AdjointDirections = n } }

// WithFDStep sets the central-difference step of the numeric Jacobian kernel.
func WithFDStep(h float64) Option { return func(o *Options) { o.FDStep = h } }
