/*
Package testutil provides shared fixtures for the CipherTrace test suites.

It holds the fixed identities used across packages (privileged Admin and
Oracle addresses plus two plain owners), constructors for a ledger over an
in-memory store, and transaction generators shaped to exercise the scoring
heuristics.

	led := testutil.NewTestLedger(t)
	sealer := testutil.NewTestSealer()

	ids := testutil.MustSubmitAll(t, led, sealer, testutil.Alice,
		testutil.BurstTransactions(4))

	analysisID, err := led.RequestAnalysis(ledger.RiskAnalysis, ids, testutil.Alice)
	require.NoError(t, err)

BurstTransactions produces near-identical amounts spaced a minute apart,
which both the risk and pattern heuristics score highly; use
TestTransaction directly when a test needs quieter data.
*/
package testutil
