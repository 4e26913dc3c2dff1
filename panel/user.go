package panel

// User is one user slot from GET_USER. Doors and Config are opaque; the
// panel documentation does not describe them.
type User struct {
	Number    int
	Name      string
	Passcode  string
	Tag       string
	Areas     byte
	Modifiers byte
	Locks     byte
	Doors     [3]byte
	Config    uint16
}

// Valid reports whether the slot holds a configured user: a passcode or a
// prox tag must be present.
func (u *User) Valid() bool {
	return u.Passcode != "" || u.Tag != ""
}

// UserSnapshot exposes only the fields safe to publish; codes and tags stay
// inside the model.
type UserSnapshot struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Areas  byte   `json:"areas"`
}

func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{Number: u.Number, Name: u.Name, Areas: u.Areas}
}
