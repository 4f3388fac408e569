package helpers

func Float64Pointer(f float64) *float64 {
	return &f
}
