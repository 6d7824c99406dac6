package glmnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HoujieWang/glmnet/glm"
)

func TestControlDefaults(t *testing.T) {

	c := DefaultControl()

	require.Equal(t, 1e-8, c.Epsilon)
	require.Equal(t, 25, c.MaxIter)
	require.Equal(t, 9.9e35, c.Big)
	require.Equal(t, 100, c.NLambda)
}

func TestSetResetControl(t *testing.T) {

	defer ResetControl()

	c := DefaultControl()
	c.Epsilon = 1e-10
	c.MaxIter = 50
	SetControl(c)

	got := CurrentControl()
	require.Equal(t, 1e-10, got.Epsilon)
	require.Equal(t, 50, got.MaxIter)

	ResetControl()
	require.Equal(t, DefaultControl(), CurrentControl())
}

// Models capture the settings in effect when Done is called; later
// changes do not affect them.
func TestControlSnapshot(t *testing.T) {

	defer ResetControl()

	c := DefaultControl()
	c.NLambda = 7
	c.FDev = 0 // no early exit
	SetControl(c)

	x, y := genGaussian(100)
	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	ResetControl()
	require.Equal(t, 100, CurrentControl().NLambda)

	path, err := m.Fit()
	require.NoError(t, err)
	require.Len(t, path.Lambda, 7)
}
