package rbac_test

import (
	"fmt"
	"testing"

	"github.com/oarkflow/rbac"
)

// Generate a store with the seeded catalog plus n extra roles and identities
func benchStore(n int) *rbac.Store {
	s := rbac.NewStoreWithDefaults()
	for i := 0; i < n; i++ {
		roleID := fmt.Sprintf("role-%d", i)
		_ = s.RegisterRole(&rbac.Role{
			ID:          roleID,
			Name:        "Role " + roleID,
			Hierarchy:   i % 3,
			Permissions: []string{"course.view", "assignment.view"},
			Conditions:  []rbac.Condition{{Field: "user.type", Operator: rbac.OpNotEquals, Value: "suspended"}},
		})
		s.SetRoles(fmt.Sprintf("user-%d", i), []string{roleID, rbac.RoleStudent})
	}
	s.SetRoles("teacher-1", []string{rbac.RoleTeacher})
	return s
}

func BenchmarkHasPermission(b *testing.B) {
	e := rbac.NewEngine(benchStore(1000))
	ac := rbac.NewAccessContext("user-42")
	ac.User.Type = "student"

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.HasPermission("user-42", "assignment.submit", ac)
	}
}

func BenchmarkHasPermissionOwnGrade(b *testing.B) {
	e := rbac.NewEngine(benchStore(100))
	ac := rbac.NewAccessContext("user-7").WithResource(rbac.ResourceContext{ID: "g1", OwnerID: "user-7"})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.HasPermission("user-7", "grade.view.own", ac)
	}
}

func BenchmarkCanAccessResource(b *testing.B) {
	e := rbac.NewEngine(benchStore(1000))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.CanAccessResource("teacher-1", "grade", "view", nil)
	}
}

func BenchmarkHasPermissionParallel(b *testing.B) {
	e := rbac.NewEngine(benchStore(1000))

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = e.HasPermission("teacher-1", "assignment.grade", nil)
		}
	})
}

func BenchmarkGenerateAccessReport(b *testing.B) {
	e := rbac.NewEngine(benchStore(10))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.GenerateAccessReport("teacher-1")
	}
}

func BenchmarkParseCondition(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = rbac.ParseCondition(`user.type in ["teacher", "admin"]`)
	}
}

func BenchmarkDSLParse(b *testing.B) {
	parser := rbac.NewDSLParser()
	data := []byte(sampleDSL)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = parser.Parse(data)
	}
}

func BenchmarkBinaryDecode(b *testing.B) {
	cfg := rbac.ConfigFromStore(benchStore(50))
	data, err := rbac.NewBinaryEncoder().Encode(cfg)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = rbac.NewBinaryDecoder(data).Decode()
	}
}

func BenchmarkYAMLDecode(b *testing.B) {
	data, err := rbac.ConfigFromStore(benchStore(50)).ToYAML()
	if err != nil {
		b.Fatal(err)
	}
	loader := rbac.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadYAML(data)
	}
}
