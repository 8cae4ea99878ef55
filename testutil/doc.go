/*
Package testutil provides test data generators for the alliance sync
protocol.

The generators use the option pattern so tests state only what they care
about and inherit sensible defaults for everything else.

# Configuration Generators

	cfg := testutil.NewTestSyncConfig(
	    testutil.WithSelf("Alice"),
	    testutil.WithIntervals(5, 1),
	    testutil.WithKeyRotation(100, 20),
	)

# Key Generators

Keys are derived deterministically from seed strings, so a test can name
the key it expects on both the sealing and the opening side:

	key := testutil.GenerateTestKey("round-1")
	keys := testutil.GenerateTestKeys(3)

# Roster and Payload Generators

	roster := testutil.NewTestRoster([]string{"Alice", "Bob"},
	    testutil.WithCouncil("Alice"),
	)

	payload := testutil.GenerateTestPayload(
	    testutil.WithCredits(500),
	    testutil.WithAttackRequest("W5N5", 0.8),
	)

# Sealed Blob Generators

For tests that bypass the channel layer and write raw segment bytes:

	blob, err := testutil.SealedRoster(key, roster, nil, "W0N0")

This package is intended for testing purposes only and should not be used
in production code.
*/
package testutil
