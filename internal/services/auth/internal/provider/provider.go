package provider

const (
	defaultFirstName = "Guest"
	defaultLastName  = "User"
)

// nameOrDefault returns the user's name if it's not empty; otherwise, it returns the default name
func nameOrDefault(name, def string) string {
	if name != "" {
		return name
	}
	return def
}
