package cpu

// Module is a loaded guest executable or library, tracked only so debug
// tooling can map addresses back to names.
type Module struct {
	Name string
	Base uint32
	Size uint32
}

func (m *Module) Contains(addr uint32) bool {
	if addr < m.Base {
		return false
	}

	return addr-m.Base < m.Size
}
