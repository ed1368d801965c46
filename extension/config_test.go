package extension

import "testing"

func TestMergeConfigurations(t *testing.T) {
	e := &Extension{}

	got := e.mergeConfigurations(
		Config{KeeperSpec: "*/30 * * * * *", SinkAccount: "burn"},
		Config{DisableKeeper: true, KeeperSpec: "@every 1h", OperatorToken: "tok", SinkAccount: "other"},
	)

	if got.KeeperSpec != "*/30 * * * * *" {
		t.Errorf("expected file spec to win, got %q", got.KeeperSpec)
	}
	if got.SinkAccount != "burn" {
		t.Errorf("expected file sink to win, got %q", got.SinkAccount)
	}
	if got.OperatorToken != "tok" {
		t.Errorf("expected programmatic token to fill gap, got %q", got.OperatorToken)
	}
	if !got.DisableKeeper {
		t.Error("expected programmatic DisableKeeper to apply")
	}
	if got.BasePath != "/tierledger" || got.TokenDecimals != 18 {
		t.Errorf("expected defaults, got base=%q decimals=%d", got.BasePath, got.TokenDecimals)
	}
}
