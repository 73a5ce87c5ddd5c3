package rbac_test

import (
	"fmt"
	"sort"

	"github.com/oarkflow/rbac"
)

func ExampleEngine_HasPermission() {
	store := rbac.NewStoreWithDefaults()
	store.SetRoles("alice", []string{rbac.RoleStudent})
	engine := rbac.NewEngine(store)

	own := rbac.NewAccessContext("alice").WithResource(rbac.ResourceContext{ID: "grade-1", OwnerID: "alice"})
	other := rbac.NewAccessContext("alice").WithResource(rbac.ResourceContext{ID: "grade-2", OwnerID: "bob"})

	fmt.Println(engine.HasPermission("alice", "grade.view.own", own))
	fmt.Println(engine.HasPermission("alice", "grade.view.own", other))
	fmt.Println(engine.HasPermission("alice", "course.edit", nil))
	// Output:
	// true
	// false
	// false
}

func ExampleEngine_Explain() {
	store := rbac.NewStoreWithDefaults()
	store.SetRoles("bob", []string{rbac.RoleTeacher})
	engine := rbac.NewEngine(store)

	d := engine.Explain("bob", "user.delete", nil)
	fmt.Println(d.Allowed, d.Reason)
	for _, line := range d.Trace {
		fmt.Println(line)
	}
	// Output:
	// false no role grants permission under context
	// role=teacher does not grant user.delete
}

func ExampleConfigBuilder() {
	perm, err := rbac.NewPermissionBuilder("lab.enter").
		Resource("lab").
		Action("enter").
		WhenExpr("env.hour < 20").
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	role, err := rbac.NewRoleBuilder("lab_tech").
		Name("Lab Technician").
		Hierarchy(1).
		Permissions("lab.enter").
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}

	dsl, err := rbac.NewConfigBuilder().
		SeedDefaults(true).
		AddPermission(perm).
		AddRole(role).
		Assign("dana", "lab_tech", rbac.RoleStudent).
		ToDSL()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Print(string(dsl))
	// Output:
	// engine seed_defaults=true
	// permission lab.enter lab enter when:"env.hour less_than 20"
	// role lab_tech "Lab Technician" rank:1 perms:lab.enter
	// assign dana lab_tech,student
}

func ExampleEngine_GenerateAccessReport() {
	store := rbac.NewStoreWithDefaults()
	store.SetRoles("alice", []string{rbac.RoleStudent})
	report := rbac.NewEngine(store).GenerateAccessReport("alice")

	resources := make([]string, 0, len(report.ResourceAccess))
	for r := range report.ResourceAccess {
		resources = append(resources, r)
	}
	sort.Strings(resources)
	for _, r := range resources {
		fmt.Println(r, report.ResourceAccess[r])
	}
	// Output:
	// assignment [view submit]
	// chat [participate]
	// course [view]
	// grade [view]
}
