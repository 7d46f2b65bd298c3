package blog

// Gate decides which actors may reach protected routes. There are no roles:
// one configured user id is the admin.
type Gate struct {
	AdminID int64
}

func (g Gate) RequireAuthenticated(a Actor) error {
	if !a.Authenticated() {
		return ErrForbidden
	}
	return nil
}

// RequireAdmin fails for anonymous actors and for every user but the admin.
// A Gate with no AdminID admits nobody.
func (g Gate) RequireAdmin(a Actor) error {
	if err := g.RequireAuthenticated(a); err != nil {
		return err
	}
	if g.AdminID == 0 || a.ID() != g.AdminID {
		return ErrForbidden
	}
	return nil
}

func (g Gate) IsAdmin(a Actor) bool {
	return g.RequireAdmin(a) == nil
}
