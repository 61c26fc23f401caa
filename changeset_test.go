package tpsec

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/supremind/tpsec/fake"
	"github.com/supremind/tpsec/types"
)

var _ = Describe("security group change", func() {
	var change *SecurityGroupChange

	BeforeEach(func() {
		change = NewSecurityGroupChange(fake.DefaultCatalog())
	})

	It("has one change per catalog permission, all inherit", func() {
		total := 0
		for _, g := range fake.DefaultCatalog() {
			total += len(g.Permissions)
		}
		Expect(change.Changes()).To(HaveLen(total))
		for _, p := range change.Changes() {
			Expect(p.Action).To(Equal(types.Inherit))
		}
		Expect(change.Pending()).To(BeEmpty())
	})

	It("resets every action to inherit", func() {
		Expect(change.Set(fake.ProjectScope, "GENERIC_READ", types.Allow)).To(Succeed())
		Expect(change.Set(fake.BuildScope, "DeleteBuilds", types.Deny)).To(Succeed())
		Expect(change.Set(fake.CSSScope, "CREATE_CHILDREN", types.NotSet)).To(Succeed())
		Expect(change.Pending()).To(HaveLen(3))

		change.ResetPermissionChanges()
		for _, p := range change.Changes() {
			Expect(p.Action).To(Equal(types.Inherit))
		}
	})

	It("refuses to set permissions outside the catalog", func() {
		Expect(change.Set("Nowhere", "GENERIC_READ", types.Allow)).To(MatchError(types.ErrNotFound))
	})

	DescribeTable("find",
		func(scope, constant string, found bool) {
			if found {
				Expect(change.Find(scope, constant)).NotTo(BeNil())
			} else {
				Expect(change.Find(scope, constant)).To(BeNil())
			}
		},
		Entry("exact", fake.ProjectScope, "GENERIC_READ", true),
		Entry("name ignores case", fake.ProjectScope, "generic_read", true),
		Entry("scope is exact", "project", "GENERIC_READ", false),
		Entry("same constant in another scope", fake.CSSScope, "GENERIC_READ", true),
		Entry("unknown constant", fake.ProjectScope, "FLY", false),
	)

	It("keeps same named permissions of different scopes apart", func() {
		Expect(change.Set(fake.CSSScope, "GENERIC_READ", types.Deny)).To(Succeed())
		Expect(change.Find(fake.ProjectScope, "GENERIC_READ").Action).To(Equal(types.Inherit))
	})

	Context("apply records", func() {
		It("updates matching changes only", func() {
			matched := change.ApplyRecords([]types.PermissionRecord{
				{Scope: fake.ProjectScope, Name: "generic_write", Action: types.Allow},
				{Scope: fake.BuildScope, Name: "LaunchRockets", Action: types.Deny},
				{Scope: "Warehouse", Name: "GENERIC_READ", Action: types.Deny},
			})

			Expect(matched).To(Equal(1))
			Expect(change.Find(fake.ProjectScope, "GENERIC_WRITE").Action).To(Equal(types.Allow))
			Expect(change.Find(fake.ProjectScope, "GENERIC_READ").Action).To(Equal(types.Inherit))
			Expect(change.Pending()).To(HaveLen(1))
		})

		It("never adds permissions", func() {
			before := len(change.Changes())
			change.ApplyRecords([]types.PermissionRecord{{Scope: "Warehouse", Name: "OPEN", Action: types.Allow}})
			Expect(change.Changes()).To(HaveLen(before))
		})
	})

	It("round trips records into a fresh change set", func() {
		Expect(change.Set(fake.ProjectScope, "DELETE", types.Deny)).To(Succeed())
		Expect(change.Set(fake.BuildScope, "QueueBuilds", types.Allow)).To(Succeed())
		Expect(change.Set(fake.CSSScope, "WORK_ITEM_WRITE", types.NotSet)).To(Succeed())

		fresh := NewSecurityGroupChange(fake.DefaultCatalog())
		fresh.ApplyRecords(change.Records())
		Expect(fresh.Records()).To(Equal(change.Records()))
	})

	It("clones deeply", func() {
		clone := change.Clone()
		Expect(clone.Set(fake.ProjectScope, "DELETE", types.Deny)).To(Succeed())
		Expect(change.Find(fake.ProjectScope, "DELETE").Action).To(Equal(types.Inherit))
	})

	It("empties with an empty catalog", func() {
		change.SetPermissionGroups(nil)
		Expect(change.Changes()).To(BeEmpty())
		Expect(change.Records()).To(BeEmpty())
	})

	DescribeTable("validate",
		func(name, description string, valid bool) {
			change.Name = name
			change.Description = description
			if valid {
				Expect(change.Validate()).To(Succeed())
			} else {
				Expect(change.Validate()).To(MatchError(types.ErrInvalidChange))
			}
		},
		Entry("plain name", "Release Managers", "", true),
		Entry("with description", "Testers", "people who test", true),
		Entry("empty name", "", "", false),
		Entry("slash", "Ops/Dev", "", false),
		Entry("pipe", "Ops|Dev", "", false),
		Entry("too long", string(make([]byte, 300)), "", false),
	)
})
