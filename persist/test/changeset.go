package test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/tpsec/types"
)

// ChangeSetPersisterTestCases are the behaviors every change set persister must have.
// location maps a short name to an address the persister accepts.
func ChangeSetPersisterTestCases(ctx context.Context, name string, p types.ChangeSetPersister, location func(string) string) bool {
	return Describe(name, func() {
		records := []types.PermissionRecord{
			{Scope: "Project", Name: "GENERIC_READ", Action: types.Allow},
			{Scope: "Project", Name: "DELETE", Action: types.Deny},
			{Scope: "Build", Name: "QueueBuilds", Action: types.NotSet},
			{Scope: "Build", Name: "ViewBuilds", Action: types.Inherit},
		}

		It("loads what was saved, in order", func() {
			Expect(p.Save(ctx, location("round-trip"), records)).To(Succeed())
			Expect(p.Load(ctx, location("round-trip"))).To(Equal(records))
		})

		It("overwrites existing sets", func() {
			Expect(p.Save(ctx, location("overwrite"), records)).To(Succeed())
			Expect(p.Save(ctx, location("overwrite"), records[:1])).To(Succeed())
			Expect(p.Load(ctx, location("overwrite"))).To(Equal(records[:1]))
		})

		It("saves empty sets", func() {
			Expect(p.Save(ctx, location("empty"), nil)).To(Succeed())
			Expect(p.Load(ctx, location("empty"))).To(BeEmpty())
		})

		It("fails to load missing sets", func() {
			_, e := p.Load(ctx, location("missing"))
			Expect(e).To(MatchError(types.ErrIO))
		})

		It("keeps sets apart", func() {
			Expect(p.Save(ctx, location("left"), records[:2])).To(Succeed())
			Expect(p.Save(ctx, location("right"), records[2:])).To(Succeed())
			Expect(p.Load(ctx, location("left"))).To(Equal(records[:2]))
			Expect(p.Load(ctx, location("right"))).To(Equal(records[2:]))
		})
	})
}
