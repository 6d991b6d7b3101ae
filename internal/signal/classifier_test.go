package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthyInputs() Inputs {
	return Inputs{
		Close:     110,
		MA200:     100,
		HasMA200:  true,
		RefMA:     105,
		HasRefMA:  true,
		Composite: 90,
	}
}

func TestClassifyUndefinedMAIsFlee(t *testing.T) {
	in := healthyInputs()
	in.HasMA200 = false
	assert.Equal(t, Flee, Classify(DefaultConfig(), in))

	in = healthyInputs()
	in.HasRefMA = false
	assert.Equal(t, Flee, Classify(DefaultConfig(), in), "missing history fails safe, never Buy")
}

func TestClassifyFlee(t *testing.T) {
	in := healthyInputs()
	in.Close = 95 // below MA200
	in.RefMA = 90 // and below would not matter, flee wins first
	in.Composite = 40

	assert.Equal(t, Flee, Classify(DefaultConfig(), in))
}

func TestClassifyEarlyWarningBelowRefMA(t *testing.T) {
	in := healthyInputs()
	in.Close = 103 // above MA200, below the 105 reference MA
	in.Composite = 90

	assert.Equal(t, EarlyWarning, Classify(DefaultConfig(), in),
		"the reference MA break precedes the buy floor in the ladder")
}

func TestClassifyCalmDeclineIsEarlyWarning(t *testing.T) {
	// A deep decline under a calm macro backdrop: the composite stays at
	// its penalty-free 100, so the first Flee branch (below MA200 while
	// stressed) never fires and the ladder stops at EarlyWarning.
	in := healthyInputs()
	in.Close = 50
	in.MA200 = 100
	in.RefMA = 80
	in.Composite = 100

	assert.Equal(t, EarlyWarning, Classify(DefaultConfig(), in),
		"Flee requires macro stress, not just a trend break")
}

func TestClassifyEarlyWarningOnSpike(t *testing.T) {
	in := healthyInputs()
	in.VolSpike = true
	assert.Equal(t, EarlyWarning, Classify(DefaultConfig(), in))
}

func TestClassifyBuy(t *testing.T) {
	in := healthyInputs()
	in.Composite = 70
	assert.Equal(t, Buy, Classify(DefaultConfig(), in))
}

func TestClassifyContrarianBuy(t *testing.T) {
	// Deep discount needs price under 90% of MA200 but composite below the
	// buy floor and price above the reference MA, so the reference MA must
	// sit even deeper.
	in := Inputs{
		Close:     85,
		MA200:     100,
		HasMA200:  true,
		RefMA:     80,
		HasRefMA:  true,
		Composite: 65, // above stress floor, below buy floor
	}
	assert.Equal(t, ContrarianBuy, Classify(DefaultConfig(), in))
}

func TestClassifyWatchDefault(t *testing.T) {
	in := healthyInputs()
	in.Composite = 60
	assert.Equal(t, Watch, Classify(DefaultConfig(), in))
}

func TestParseRoundTrip(t *testing.T) {
	for _, sig := range []Signal{Buy, ContrarianBuy, Watch, EarlyWarning, Flee} {
		parsed, err := Parse(sig.String())
		assert.NoError(t, err)
		assert.Equal(t, sig, parsed)
	}

	_, err := Parse("moon")
	assert.Error(t, err)
}
