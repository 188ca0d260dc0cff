package acl

import "testing"

func TestAccessLevelRanking(t *testing.T) {
	if !LevelOwner.AtLeast(LevelReadWrite) || !LevelReadWrite.AtLeast(LevelReadOnly) {
		t.Error("Expected OWNER > READ_WRITE > READ_ONLY")
	}
	if LevelReadOnly.AtLeast(LevelReadWrite) {
		t.Error("READ_ONLY must not satisfy READ_WRITE")
	}
	if !LevelReadWrite.AtLeast(LevelReadWrite) {
		t.Error("A level satisfies itself")
	}

	if got := MaxLevel(LevelReadOnly, LevelReadWrite); got != LevelReadWrite {
		t.Errorf("MaxLevel(READ_ONLY, READ_WRITE) = %s", got)
	}
	if got := MaxLevel(LevelOwner, LevelReadOnly); got != LevelOwner {
		t.Errorf("MaxLevel(OWNER, READ_ONLY) = %s", got)
	}
}

func TestAccessLevelValid(t *testing.T) {
	for _, l := range []AccessLevel{LevelOwner, LevelReadWrite, LevelReadOnly} {
		if !l.Valid() {
			t.Errorf("Expected %s to be valid", l)
		}
	}
	if AccessLevel("ADMIN").Valid() {
		t.Error("Expected unknown level to be invalid")
	}
	if AccessLevel("").Valid() {
		t.Error("Expected empty level to be invalid")
	}
}

func TestPrincipalTypeEntityLabel(t *testing.T) {
	cases := map[PrincipalType]string{
		PrincipalUser:             "",
		PrincipalGroup:            "Group",
		PrincipalDistributionList: "Distribution list",
	}
	for pt, want := range cases {
		if got := pt.EntityLabel(); got != want {
			t.Errorf("EntityLabel(%s) = %q, want %q", pt, got, want)
		}
	}
}
