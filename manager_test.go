package tpsec

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/tpsec/fake"
	persistfake "github.com/supremind/tpsec/persist/fake"
	"github.com/supremind/tpsec/task"
	"github.com/supremind/tpsec/types"
)

var _ = Describe("manager", func() {
	var (
		coll      *collection
		persister types.ChangeSetPersister
		m         *Manager
	)

	BeforeEach(func() {
		coll = newCollection()
		persister = persistfake.NewChangeSetPersister(nil)

		var e error
		m, e = New(ctx, WithConnection(coll), WithPersister(persister), WithLogger(testLogger()))
		Expect(e).To(Succeed())
	})

	Describe("permission catalog", func() {
		It("is read once when the connection is selected", func() {
			Expect(m.PermissionGroups()).To(Equal(fake.DefaultCatalog()))
			Expect(m.PermissionGroups()).To(HaveLen(3))
			Expect(coll.Calls("PermissionGroups")).To(HaveLen(1))
			Expect(m.SecurityGroupChange().PermissionGroupChanges).To(HaveLen(3))
		})

		It("is cleared with the connection", func() {
			Expect(m.SelectConnection(ctx, nil)).To(Succeed())
			Expect(m.PermissionGroups()).To(BeEmpty())
			Expect(m.SecurityGroupChange().Changes()).To(BeEmpty())

			_, e := m.Connection()
			Expect(e).To(MatchError(types.ErrNoConnection))
		})

		It("is rebuilt for another connection", func() {
			other := fake.NewConnection("Other", types.PermissionGroup{
				Scope:       "Project",
				DisplayName: "Team Project",
				Permissions: []types.PermissionDescriptor{{Scope: "Project", Constant: "GENERIC_READ"}},
			})
			Expect(m.SecurityGroupChange().Set(fake.BuildScope, "ViewBuilds", types.Allow)).To(Succeed())

			Expect(m.SelectConnection(ctx, other)).To(Succeed())
			Expect(m.SecurityGroupChange().Changes()).To(HaveLen(1))
			Expect(m.SecurityGroupChange().Pending()).To(BeEmpty())
		})

		It("keeps the previous state if the catalog cannot be read", func() {
			other := fake.NewConnection("Broken")
			other.FailWhen(func(fake.Call) error { return errors.New("offline") })

			Expect(m.SelectConnection(ctx, other)).To(MatchError(types.ErrServiceCall))
			conn, e := m.Connection()
			Expect(e).To(Succeed())
			Expect(conn.Name()).To(Equal("DefaultCollection"))
		})

		It("needs a connection", func() {
			_, e := GetPermissionGroups(ctx, nil)
			Expect(e).To(MatchError(types.ErrNoConnection))
		})
	})

	Describe("list groups", func() {
		It("lists active groups ordered by name", func() {
			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo, coll.gemini}, types.MembershipNone).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Warnings).To(BeEmpty())
			Expect(res.Summary).To(Equal("Retrieved 3 security groups"))

			names := make([]string, 0)
			for _, g := range res.Value {
				names = append(names, g.TeamProject.Name+"/"+g.Name)
				Expect(g.Members).To(BeEmpty())
			}
			Expect(names).To(Equal([]string{"Apollo/Contributors", "Apollo/Readers", "Gemini/Builders"}))
			Expect(coll.Calls("ReadIdentity", "ReadIdentities")).To(BeEmpty())
		})

		It("fills group details", func() {
			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipNone).Wait()
			Expect(res.Value).NotTo(BeEmpty())

			readers := res.Value[1]
			Expect(readers.Sid).To(Equal(coll.readers.Identifier))
			Expect(readers.FullName).To(Equal("[Apollo]\\Readers"))
			Expect(readers.Description).To(Equal("read only"))
		})

		It("resolves direct members", func() {
			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipDirect).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value[0].Members).To(ConsistOf("[Apollo]\\Readers", "karman"))
			Expect(res.Value[1].Members).To(ConsistOf("alan"))
		})

		It("resolves expanded members", func() {
			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipExpanded).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value[0].Members).To(ConsistOf("[Apollo]\\Readers", "alan", "karman"))
		})

		It("warns about failing projects and goes on", func() {
			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "ListApplicationGroups" && call.Key == coll.apollo.URI {
					return errors.New("access denied")
				}
				return nil
			})

			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo, coll.gemini}, types.MembershipNone).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Message).To(Equal(`An error occurred while processing Team Project "Apollo"`))
			Expect(res.Value).To(HaveLen(1))
			Expect(res.Value[0].Name).To(Equal("Builders"))
		})

		It("keeps groups read before a project failed", func() {
			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "ReadIdentity" && call.Key == coll.readers.Identifier {
					return errors.New("timeout")
				}
				return nil
			})

			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipDirect).Wait()
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Value).To(HaveLen(1))
			Expect(res.Value[0].Name).To(Equal("Contributors"))
		})

		It("stops early when canceled", func() {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo, coll.gemini}, types.MembershipNone, task.WithProgress(func(p task.Progress) {
				if p.Step == 0 && p.Status != task.StatusCanceled {
					cancel()
				}
			})).Wait()

			Expect(res.Err).To(Succeed())
			Expect(res.Canceled).To(BeTrue())
			Expect(res.Value).To(HaveLen(1))
			Expect(coll.Calls("ListApplicationGroups")).To(HaveLen(1))
		})

		It("needs a connection", func() {
			Expect(m.SelectConnection(ctx, nil)).To(Succeed())
			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipNone).Wait()
			Expect(res.Err).To(MatchError(types.ErrNoConnection))
		})
	})

	Describe("delete groups", func() {
		var groups []types.SecurityGroupInfo

		BeforeEach(func() {
			res := m.ListGroups(ctx, []types.TeamProject{coll.apollo, coll.gemini}, types.MembershipNone).Wait()
			Expect(res.Err).To(Succeed())
			groups = res.Value
			coll.ResetCalls()
		})

		It("deletes every group", func() {
			res := m.DeleteGroups(ctx, groups).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(3))
			Expect(res.Summary).To(Equal("Deleted 3 security groups"))
			Expect(coll.Calls("DeleteApplicationGroup")).To(HaveLen(3))

			left := m.ListGroups(ctx, []types.TeamProject{coll.apollo, coll.gemini}, types.MembershipNone).Wait()
			Expect(left.Value).To(BeEmpty())
		})

		It("counts only groups actually deleted", func() {
			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "DeleteApplicationGroup" && call.Key == coll.readers.Identifier {
					return errors.New("group is in use")
				}
				return nil
			})

			res := m.DeleteGroups(ctx, groups).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(2))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Message).To(Equal(`An error occurred while deleting security group "Readers" in Team Project "Apollo"`))
			Expect(coll.Calls("DeleteApplicationGroup")).To(HaveLen(3))
		})
	})

	Describe("add or update group", func() {
		BeforeEach(func() {
			change := m.SecurityGroupChange()
			change.Name = "Release Managers"
			change.Description = "ship it"
			Expect(change.Set(fake.ProjectScope, "GENERIC_READ", types.Allow)).To(Succeed())
			Expect(change.Set(fake.BuildScope, "QueueBuilds", types.Allow)).To(Succeed())
			Expect(change.Set(fake.BuildScope, "DeleteBuilds", types.Deny)).To(Succeed())
		})

		It("creates the group and sets its permissions in every project", func() {
			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo, coll.gemini}).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Warnings).To(BeEmpty())
			Expect(res.Value).To(Equal(2))
			Expect(res.Summary).To(Equal("Added / updated 2 security groups"))
			Expect(coll.Calls("CreateApplicationGroup")).To(HaveLen(2))
			Expect(coll.Calls("SetPermission")).To(HaveLen(6))

			groups := m.ListGroups(ctx, []types.TeamProject{coll.gemini}, types.MembershipNone).Wait().Value
			Expect(groups).To(HaveLen(2))
			managers := groups[1]
			Expect(managers.Name).To(Equal("Release Managers"))
			Expect(managers.Description).To(Equal("ship it"))

			d := types.Descriptor{IdentityType: types.GroupIdentityType, Identifier: managers.Sid}
			Expect(coll.Permission("Gemini", fake.BuildScope, d, "QueueBuilds")).To(Equal(types.Allow))
			Expect(coll.Permission("Gemini", fake.BuildScope, d, "DeleteBuilds")).To(Equal(types.Deny))
			Expect(coll.Permission("Gemini", fake.BuildScope, d, "ViewBuilds")).To(Equal(types.NotSet))
		})

		It("updates existing groups", func() {
			m.SecurityGroupChange().Name = "readers"

			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo}).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(1))
			Expect(coll.Calls("CreateApplicationGroup")).To(BeEmpty())
			Expect(coll.Calls("UpdateApplicationGroup")).To(HaveLen(1))
			Expect(coll.Permission("Apollo", fake.ProjectScope, coll.readers, "GENERIC_READ")).To(Equal(types.Allow))
		})

		It("rejects invalid group names before starting", func() {
			m.SecurityGroupChange().Name = ""
			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo}).Wait()
			Expect(res.Err).To(MatchError(types.ErrInvalidChange))
			Expect(coll.Calls("TeamProject", "CreateApplicationGroup", "SetPermission")).To(BeEmpty())
		})

		It("warns once per failing project", func() {
			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "SetPermission" && strings.HasPrefix(call.Key, "Apollo/") {
					return errors.New("denied")
				}
				return nil
			})

			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo, coll.gemini}).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(1))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Message).To(Equal(`An error occurred while adding / updating security group "Release Managers" for Team Project "Apollo"`))
			Expect(coll.Calls("SetPermission")).To(HaveLen(6))
		})

		It("warns about a project with a single failing permission", func() {
			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "SetPermission" && call.Key == "Apollo/Build/QueueBuilds" {
					return errors.New("denied")
				}
				return nil
			})

			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo, coll.gemini}).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(1))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Err).To(MatchError(types.ErrServiceCall))
			Expect(res.Warnings[0].Err.Error()).To(ContainSubstring("QueueBuilds"))
			Expect(coll.Calls("SetPermission")).To(HaveLen(6))

			var managers types.Descriptor
			for _, g := range m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipNone).Wait().Value {
				if g.Name == "Release Managers" {
					managers = types.Descriptor{IdentityType: types.GroupIdentityType, Identifier: g.Sid}
				}
			}
			Expect(managers.Identifier).NotTo(BeEmpty())
			Expect(coll.Permission("Apollo", fake.ProjectScope, managers, "GENERIC_READ")).To(Equal(types.Allow))
			Expect(coll.Permission("Apollo", fake.BuildScope, managers, "QueueBuilds")).To(Equal(types.NotSet))
			Expect(coll.Permission("Apollo", fake.BuildScope, managers, "DeleteBuilds")).To(Equal(types.Deny))
		})

		It("still warns about a failed permission when canceled", func() {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "SetPermission" && strings.HasPrefix(call.Key, "Apollo/") {
					cancel()
					return errors.New("denied")
				}
				return nil
			})

			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo, coll.gemini}).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Canceled).To(BeTrue())
			Expect(res.Value).To(Equal(0))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Message).To(Equal(`An error occurred while adding / updating security group "Release Managers" for Team Project "Apollo"`))
			Expect(coll.Calls("SetPermission")).To(HaveLen(1))
		})

		It("does not warn when canceled without failures", func() {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			coll.FailWhen(func(call fake.Call) error {
				if call.Method == "SetPermission" {
					cancel()
				}
				return nil
			})

			res := m.AddOrUpdateGroup(ctx, []types.TeamProject{coll.apollo, coll.gemini}).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Canceled).To(BeTrue())
			Expect(res.Warnings).To(BeEmpty())
			Expect(coll.Calls("SetPermission")).To(HaveLen(1))
		})
	})

	Describe("load and save", func() {
		It("saves every permission", func() {
			Expect(m.SecurityGroupChange().Set(fake.ProjectScope, "DELETE", types.Deny)).To(Succeed())
			Expect(m.SavePermissions(ctx, "managers.xml")).To(Succeed())

			records, e := persister.Load(ctx, "managers.xml")
			Expect(e).To(Succeed())
			Expect(records).To(HaveLen(len(m.SecurityGroupChange().Changes())))
			Expect(records).To(ContainElement(types.PermissionRecord{Scope: fake.ProjectScope, Name: "DELETE", Action: types.Deny}))
		})

		It("round trips through a reset", func() {
			change := m.SecurityGroupChange()
			Expect(change.Set(fake.ProjectScope, "DELETE", types.Deny)).To(Succeed())
			Expect(change.Set(fake.BuildScope, "ViewBuilds", types.Allow)).To(Succeed())
			Expect(change.Set(fake.CSSScope, "GENERIC_READ", types.NotSet)).To(Succeed())
			want := change.Records()

			Expect(m.SavePermissions(ctx, "set.xml")).To(Succeed())
			m.ResetPermissionChanges()
			Expect(change.Pending()).To(BeEmpty())

			Expect(m.LoadPermissions(ctx, "set.xml")).To(Succeed())
			Expect(change.Records()).To(Equal(want))
		})

		It("replaces previous actions and ignores unknown permissions", func() {
			Expect(persister.Save(ctx, "foreign.xml", []types.PermissionRecord{
				{Scope: fake.ProjectScope, Name: "generic_write", Action: types.Allow},
				{Scope: "Warehouse", Name: "OPEN_DOORS", Action: types.Deny},
			})).To(Succeed())
			Expect(m.SecurityGroupChange().Set(fake.BuildScope, "ViewBuilds", types.Deny)).To(Succeed())

			Expect(m.LoadPermissions(ctx, "foreign.xml")).To(Succeed())
			pending := m.SecurityGroupChange().Pending()
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Permission.Constant).To(Equal("GENERIC_WRITE"))
		})

		It("leaves the change set alone when loading fails", func() {
			Expect(m.SecurityGroupChange().Set(fake.BuildScope, "ViewBuilds", types.Deny)).To(Succeed())
			Expect(m.LoadPermissions(ctx, "missing.xml")).To(MatchError(types.ErrIO))
			Expect(m.SecurityGroupChange().Pending()).To(HaveLen(1))
		})

		It("can be used from several goroutines", func() {
			Expect(m.SecurityGroupChange().Set(fake.ProjectScope, "DELETE", types.Deny)).To(Succeed())
			Expect(m.SavePermissions(ctx, "shared.xml")).To(Succeed())
			total := len(m.SecurityGroupChange().Changes())

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(4)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(m.LoadPermissions(ctx, "shared.xml")).To(Succeed())
				}()
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(m.SavePermissions(ctx, "copy.xml")).To(Succeed())
				}()
				go func() {
					defer wg.Done()
					m.ResetPermissionChanges()
				}()
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(m.SelectConnection(ctx, coll)).To(Succeed())
				}()
			}
			wg.Wait()

			Expect(m.SecurityGroupChange().Changes()).To(HaveLen(total))
			records, e := persister.Load(ctx, "copy.xml")
			Expect(e).To(Succeed())
			Expect(records).To(HaveLen(total))
		})
	})

	Describe("export", func() {
		It("saves one set per group", func() {
			Expect(coll.SetPermission(ctx, types.PermissionTarget{Project: coll.apollo, Scope: fake.ProjectScope, Group: coll.readers}, "GENERIC_READ", types.Allow)).To(Succeed())
			groups := m.ListGroups(ctx, []types.TeamProject{coll.apollo, coll.gemini}, types.MembershipNone).Wait().Value
			requests := ExportRequests(groups, "exports")

			res := m.ExportPermissions(ctx, requests).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(3))
			Expect(res.Summary).To(Equal("Exported 3 security group permissions"))

			records, e := persister.Load(ctx, filepath.Join("exports", "Apollo", "Readers.xml"))
			Expect(e).To(Succeed())
			Expect(records).To(ContainElement(types.PermissionRecord{Scope: fake.ProjectScope, Name: "GENERIC_READ", Action: types.Allow}))
			Expect(records).To(ContainElement(types.PermissionRecord{Scope: fake.ProjectScope, Name: "DELETE", Action: types.NotSet}))
		})

		It("places s3 exports under the prefix", func() {
			groups := []types.SecurityGroupInfo{
				types.NewSecurityGroupInfo(coll.apollo, coll.readers.Identifier, "[Apollo]\\Readers", "", nil),
				types.NewSecurityGroupInfo(coll.gemini, coll.builders.Identifier, "[Gemini]\\Builders", "", nil),
			}
			requests := ExportRequests(groups, "s3://bucket/exports/")
			Expect(requests).To(HaveLen(2))
			Expect(requests[0].Location).To(Equal("s3://bucket/exports/Apollo/Readers.xml"))
			Expect(requests[1].Location).To(Equal("s3://bucket/exports/Gemini/Builders.xml"))
		})

		It("exports a single group to the given location", func() {
			Expect(coll.SetPermission(ctx, types.PermissionTarget{Project: coll.gemini, Scope: fake.BuildScope, Group: coll.builders}, "QueueBuilds", types.Allow)).To(Succeed())
			groups := m.ListGroups(ctx, []types.TeamProject{coll.gemini}, types.MembershipNone).Wait().Value
			Expect(groups).To(HaveLen(1))

			requests := ExportRequests(groups, "builders.xml")
			Expect(requests).To(Equal([]ExportRequest{{Group: groups[0], Location: "builders.xml"}}))

			res := m.ExportPermissions(ctx, requests).Wait()
			Expect(res.Err).To(Succeed())
			Expect(res.Value).To(Equal(1))

			records, e := persister.Load(ctx, "builders.xml")
			Expect(e).To(Succeed())
			Expect(records).To(ContainElement(types.PermissionRecord{Scope: fake.BuildScope, Name: "QueueBuilds", Action: types.Allow}))
		})

		It("warns about groups which cannot be read", func() {
			groups := []types.SecurityGroupInfo{
				types.NewSecurityGroupInfo(coll.apollo, "gone", "[Apollo]\\Gone", "", nil),
				types.NewSecurityGroupInfo(coll.gemini, coll.builders.Identifier, "[Gemini]\\Builders", "", nil),
			}
			res := m.ExportPermissions(ctx, ExportRequests(groups, "exports")).Wait()
			Expect(res.Value).To(Equal(1))
			Expect(res.Warnings).To(HaveLen(1))
		})
	})

	It("runs one operation at a time", func() {
		var once sync.Once
		release := make(chan struct{})
		started := make(chan struct{})

		coll.FailWhen(func(call fake.Call) error {
			if call.Method == "ListApplicationGroups" {
				once.Do(func() { close(started) })
				<-release
			}
			return nil
		})

		first := m.ListGroups(ctx, []types.TeamProject{coll.apollo}, types.MembershipNone)
		Eventually(started).Should(BeClosed())

		second := m.DeleteGroups(ctx, nil).Wait()
		Expect(second.Err).To(MatchError(types.ErrBusy))

		close(release)
		Expect(first.Wait().Err).To(Succeed())
		Expect(m.DeleteGroups(ctx, nil).Wait().Err).To(Succeed())
	})
})
