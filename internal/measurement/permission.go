package measurement

// PermissionState is the shared permission vocabulary every platform maps into.
type PermissionState string

const (
	PermissionPrompt              PermissionState = "prompt"
	PermissionPromptWithRationale PermissionState = "prompt-with-rationale"
	PermissionGranted             PermissionState = "granted"
	PermissionDenied              PermissionState = "denied"
	PermissionLimited             PermissionState = "limited"
)

// Valid reports whether s is one of the known states.
func (s PermissionState) Valid() bool {
	switch s {
	case PermissionPrompt, PermissionPromptWithRationale, PermissionGranted, PermissionDenied, PermissionLimited:
		return true
	}
	return false
}

// ParsePermissionState converts a wire value. Unknown values map to prompt.
func ParsePermissionState(v string) PermissionState {
	s := PermissionState(v)
	if !s.Valid() {
		return PermissionPrompt
	}
	return s
}

// PermissionStatus is returned by permission checks and requests.
type PermissionStatus struct {
	Barometer PermissionState `json:"barometer"`
}
