package core

import (
	"context"
	"testing"
)

var (
	regionNorthID = "region-north"
	regionSouthID = "region-south"
	sectorOneID   = "sector-1"
	sectorTwoID   = "sector-2"
	sectorThreeID = "sector-3"
	schoolOneID   = "school-1"
	schoolTwoID   = "school-2"
	schoolThreeID = "school-3"
	schoolFourID  = "school-4"
)

var (
	superAdmin       = Principal{ID: "user-super", Role: RoleSuperAdmin}
	regionNorthAdmin = Principal{ID: "user-region-north", Role: RoleRegionAdmin, RegionID: &regionNorthID}
	sectorOneAdmin   = Principal{ID: "user-sector-1", Role: RoleSectorAdmin, SectorID: &sectorOneID}
	schoolOneAdmin   = Principal{ID: "user-school-1", Role: RoleSchoolAdmin, SchoolID: &schoolOneID}
	schoolTwoAdmin   = Principal{ID: "user-school-2", Role: RoleSchoolAdmin, SchoolID: &schoolTwoID}
	schoolThreeAdmin = Principal{ID: "user-school-3", Role: RoleSchoolAdmin, SchoolID: &schoolThreeID}
	schoolFourAdmin  = Principal{ID: "user-school-4", Role: RoleSchoolAdmin, SchoolID: &schoolFourID}
)

// newTestService builds an in-memory service seeded with a small org tree:
//
//	region-north -> sector-1 -> school-1, school-2
//	             -> sector-2 -> school-3
//	region-south -> sector-3 -> school-4
func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewInMemoryService(NewDefaultRulesEngine())
	nodes := []OrgNode{
		{Base: Base{ID: regionNorthID}, Kind: OrgRegion, Name: "North"},
		{Base: Base{ID: regionSouthID}, Kind: OrgRegion, Name: "South"},
		{Base: Base{ID: sectorOneID}, Kind: OrgSector, Name: "Sector One", ParentID: &regionNorthID},
		{Base: Base{ID: sectorTwoID}, Kind: OrgSector, Name: "Sector Two", ParentID: &regionNorthID},
		{Base: Base{ID: sectorThreeID}, Kind: OrgSector, Name: "Sector Three", ParentID: &regionSouthID},
		{Base: Base{ID: schoolOneID}, Kind: OrgSchool, Name: "School One", ParentID: &sectorOneID},
		{Base: Base{ID: schoolTwoID}, Kind: OrgSchool, Name: "School Two", ParentID: &sectorOneID},
		{Base: Base{ID: schoolThreeID}, Kind: OrgSchool, Name: "School Three", ParentID: &sectorTwoID},
		{Base: Base{ID: schoolFourID}, Kind: OrgSchool, Name: "School Four", ParentID: &sectorThreeID},
	}
	if _, err := svc.SeedOrgNodes(context.Background(), nodes); err != nil {
		t.Fatalf("seed org nodes: %v", err)
	}
	return svc
}

func mustCreateCategory(t *testing.T, svc *Service, name string, assignment Assignment) Category {
	t.Helper()
	cat, _, err := svc.CreateCategory(context.Background(), superAdmin, NewCategory{
		Name:       name,
		Assignment: assignment,
	})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return cat
}

func mustCreateColumn(t *testing.T, svc *Service, input NewColumn) Column {
	t.Helper()
	col, _, err := svc.CreateColumn(context.Background(), superAdmin, input)
	if err != nil {
		t.Fatalf("create column %s: %v", input.Name, err)
	}
	return col
}

func resolveScopeFor(t *testing.T, svc *Service, principal Principal) (Scope, error) {
	t.Helper()
	var scope Scope
	var scopeErr error
	err := svc.Store().View(context.Background(), func(view TransactionView) error {
		scope, scopeErr = ResolveScope(view, principal)
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return scope, scopeErr
}
