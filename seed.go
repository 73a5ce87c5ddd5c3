package rbac

// Built-in role ids.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// DefaultPermissions returns the built-in permission catalog. grade.view.own
// shares (grade, view) with grade.view but only applies to the caller's own
// records.
func DefaultPermissions() []*Permission {
	return []*Permission{
		{ID: "course.view", Resource: "course", Action: "view", Description: "View course content"},
		{ID: "course.create", Resource: "course", Action: "create", Description: "Create courses"},
		{ID: "course.edit", Resource: "course", Action: "update", Description: "Edit course content and settings"},
		{ID: "course.delete", Resource: "course", Action: "delete", Description: "Delete courses"},
		{ID: "assignment.view", Resource: "assignment", Action: "view", Description: "View assignments"},
		{ID: "assignment.submit", Resource: "assignment", Action: "submit", Description: "Submit assignment work"},
		{ID: "assignment.create", Resource: "assignment", Action: "create", Description: "Create assignments"},
		{ID: "assignment.grade", Resource: "assignment", Action: "grade", Description: "Grade submissions"},
		{ID: "grade.view", Resource: "grade", Action: "view", Description: "View every gradebook entry"},
		{
			ID: "grade.view.own", Resource: "grade", Action: "view", Description: "View own grades",
			Conditions: []Condition{{Field: "resource.ownerId", Operator: OpEquals, Value: "$user.id"}},
		},
		{ID: "grade.edit", Resource: "grade", Action: "update", Description: "Edit gradebook entries"},
		{ID: "user.view", Resource: "user", Action: "view", Description: "View user profiles"},
		{ID: "user.create", Resource: "user", Action: "create", Description: "Create users"},
		{ID: "user.edit", Resource: "user", Action: "update", Description: "Edit users"},
		{ID: "user.delete", Resource: "user", Action: "delete", Description: "Delete users"},
		{ID: "analytics.view", Resource: "analytics", Action: "view", Description: "View analytics dashboards"},
		{ID: "chat.participate", Resource: "chat", Action: "participate", Description: "Send chat messages"},
		{ID: "chat.moderate", Resource: "chat", Action: "moderate", Description: "Moderate chat rooms"},
		{ID: "system.configure", Resource: "system", Action: "configure", Description: "Change platform settings"},
	}
}

var studentPermissions = []string{
	"course.view",
	"assignment.view",
	"assignment.submit",
	"grade.view.own",
	"chat.participate",
}

var teacherPermissions = []string{
	"course.view",
	"course.create",
	"course.edit",
	"assignment.view",
	"assignment.create",
	"assignment.grade",
	"grade.view",
	"grade.edit",
	"user.view",
	"analytics.view",
	"chat.participate",
	"chat.moderate",
}

// DefaultRoles returns the built-in roles. Roles list their permissions
// explicitly; the admin role gets the whole default catalog.
func DefaultRoles() []*Role {
	all := DefaultPermissions()
	adminPermissions := make([]string, 0, len(all))
	for _, p := range all {
		adminPermissions = append(adminPermissions, p.ID)
	}
	return []*Role{
		{ID: RoleStudent, Name: "Student", Description: "Enrolled learner", Permissions: append([]string(nil), studentPermissions...), Hierarchy: 1, IsSystem: true},
		{ID: RoleTeacher, Name: "Teacher", Description: "Course instructor", Permissions: append([]string(nil), teacherPermissions...), Hierarchy: 2, IsSystem: true},
		{ID: RoleAdmin, Name: "Administrator", Description: "Platform administrator", Permissions: adminPermissions, Hierarchy: 3, IsSystem: true},
	}
}

// SeedDefaults registers the default catalog into s.
func SeedDefaults(s *Store) {
	for _, p := range DefaultPermissions() {
		_ = s.RegisterPermission(p)
	}
	for _, r := range DefaultRoles() {
		_ = s.RegisterRole(r)
	}
}
