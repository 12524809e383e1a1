package auth

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
)

var Roles = []Role{RoleAdmin, RoleLibrarian, RoleTeacher, RoleStudent}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// Staff roles may lend and take back books.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleLibrarian || r == RoleTeacher
}

// Capability names one protected operation.
type Capability int

const (
	ManageBooks Capability = iota
	Circulate
	ViewAllLoans
	ViewAllReservations
	ManageUsers
	ViewUsers
	ViewReports
	ImportBooks
	ExportBooks
	ExportLoans
	ImportUsers
	ExportUsers
	ViewAudit
)

var grants = map[Capability][]Role{
	ManageBooks:         {RoleAdmin, RoleLibrarian},
	Circulate:           {RoleAdmin, RoleLibrarian, RoleTeacher},
	ViewAllLoans:        {RoleAdmin, RoleLibrarian, RoleTeacher},
	ViewAllReservations: {RoleAdmin, RoleLibrarian, RoleTeacher},
	ManageUsers:         {RoleAdmin},
	ViewUsers:           {RoleAdmin, RoleLibrarian},
	ViewReports:         {RoleAdmin, RoleLibrarian},
	ImportBooks:         {RoleAdmin, RoleLibrarian},
	ExportBooks:         {RoleAdmin, RoleLibrarian},
	ExportLoans:         {RoleAdmin, RoleLibrarian},
	ImportUsers:         {RoleAdmin},
	ExportUsers:         {RoleAdmin},
	ViewAudit:           {RoleAdmin},
}

// Can reports whether role is granted c.
func Can(role Role, c Capability) bool {
	for _, r := range grants[c] {
		if r == role {
			return true
		}
	}
	return false
}
