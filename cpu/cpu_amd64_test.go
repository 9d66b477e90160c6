package cpu

import "testing"

func TestIsIntel(t *testing.T) {
	defer func() { cpuidFn = ID }()

	specs := []struct {
		name               string
		eax, ebx, ecx, edx uint32
		want               bool
	}{
		{"intel", 0, 0x756e6547, 0x6c65746e, 0x49656e69, true},
		{"amd", 0, 0x68747541, 0x444d4163, 0x69746e65, false},
	}

	for _, spec := range specs {
		spec := spec
		t.Run(spec.name, func(t *testing.T) {
			cpuidFn = func(uint32) (uint32, uint32, uint32, uint32) {
				return spec.eax, spec.ebx, spec.ecx, spec.edx
			}
			if got := IsIntel(); got != spec.want {
				t.Errorf("IsIntel() = %v, want %v", got, spec.want)
			}
		})
	}
}
