package cmd

import "testing"

func TestRunTests_RequiresAssembly(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--worker", "/bin/true"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error when --assembly is missing")
	}
}

func TestRunTests_RequiresWorker(t *testing.T) {
	rootCmd.SetArgs([]string{"run", "--assembly", "./does-not-matter", "--worker", ""})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error when --worker is missing")
	}
}

func TestFilterIdentifiers_SubstringMatchCaseInsensitive(t *testing.T) {
	identifiers := []string{"Suite.TestAlpha", "Suite.TestBeta", "Other.TestAlpha"}

	got := filterIdentifiers(identifiers, "beta")
	if len(got) != 1 || got[0] != "Suite.TestBeta" {
		t.Fatalf("unexpected filter result: %v", got)
	}

	got = filterIdentifiers(identifiers, "testalpha")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
}
