package domain

// Prefer is the caller's requested conversion mode
type Prefer string

const (
	PreferAuto     Prefer = "auto"
	PreferAppend   Prefer = "append"
	PreferRedirect Prefer = "redirect"
)

// ConversionMode is the mode actually produced by the conversion policy
type ConversionMode string

const (
	ModeAppend   ConversionMode = "append"
	ModeRedirect ConversionMode = "redirect"
)

// AppendMarker is the query parameter added to URLs converted in append mode
const AppendMarker = "orig=1"
