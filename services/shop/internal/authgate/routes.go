package authgate

import "ecomarket/pkg/domain"

// Page is a resolved route.
type Page struct {
	Path string
	Name string
}

// RouteSet maps reachable paths to page names for one role.
type RouteSet struct {
	Home   string
	Routes map[string]string
}

// Lookup returns the page registered for path.
func (rs RouteSet) Lookup(path string) (Page, bool) {
	name, ok := rs.Routes[path]
	if !ok {
		return Page{}, false
	}
	return Page{Path: path, Name: name}, true
}

// HomePage returns the fallback page of the set.
func (rs RouteSet) HomePage() Page {
	return Page{Path: rs.Home, Name: rs.Routes[rs.Home]}
}

var (
	PublicRoutes = RouteSet{
		Home: "/login",
		Routes: map[string]string{
			"/login":    "Login",
			"/register": "Register",
		},
	}

	AdminRoutes = RouteSet{
		Home: "/dashboard",
		Routes: map[string]string{
			"/":                "Dashboard",
			"/dashboard":       "Dashboard",
			"/products":        "Products",
			"/products/new":    "AddProduct",
			"/users":           "Users",
			"/users/new":       "AddUser",
			"/comments":        "Comments",
			"/recommendations": "Recommendations",
		},
	}

	UserRoutes = RouteSet{
		Home: "/home",
		Routes: map[string]string{
			"/":                "UserHome",
			"/home":            "UserHome",
			"/cart":            "Cart",
			"/comments":        "Comments",
			"/recommendations": "Recommendations",
			"/centros-acopio":  "CentrosAcopio",
		},
	}
)

// RoutesFor returns the route set of role, or nil for an unknown role.
func RoutesFor(role domain.UserRole) *RouteSet {
	switch role {
	case domain.RoleAdmin:
		return &AdminRoutes
	case domain.RoleUser:
		return &UserRoutes
	default:
		return nil
	}
}
