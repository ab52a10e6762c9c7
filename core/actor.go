package core

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID      string
	Email   string
	Name    string
	IsAdmin bool
}

// Owns reports whether the actor may act on a resource owned by userID.
func (a Actor) Owns(userID string) bool {
	return a.IsAdmin || (a.ID != "" && a.ID == userID)
}
