package rtc

// CapabilityChecker answers whether the local environment can capture
// media at all. The frontend supplies a real probe; headless embedders
// use AlwaysCapable or NeverCapable.
type CapabilityChecker interface {
	CanCapture() bool
}

type capabilityFunc func() bool

func (f capabilityFunc) CanCapture() bool { return f() }

var (
	AlwaysCapable CapabilityChecker = capabilityFunc(func() bool { return true })
	NeverCapable  CapabilityChecker = capabilityFunc(func() bool { return false })
)
