package scheduling

// Availability is the tagged result of provider assignment: Available or Unavailable.
type Availability interface {
	isAvailability()
}

// Available names the provider a slot would be booked with.
type Available struct {
	ProviderID string
}

// Unavailable means every eligible provider is busy.
type Unavailable struct{}

func (Available) isAvailability()   {}
func (Unavailable) isAvailability() {}

// Assign picks the first provider, in enumeration order, that is known not to
// be busy. Providers missing from busy were not checked and are skipped.
func Assign(providers []string, busy map[string]bool) Availability {
	for _, id := range providers {
		isBusy, checked := busy[id]
		if checked && !isBusy {
			return Available{ProviderID: id}
		}
	}
	return Unavailable{}
}
