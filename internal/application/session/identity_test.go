package session

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestIdentity_CurrentReturnsCopy(t *testing.T) {
	u := alice
	id := NewIdentity(&u)
	u = bob // modificar la variable no afecta a la identidad

	cur := id.Current()
	require.NotNil(t, cur)
	assert.Equal(t, alice, *cur)

	*cur = bob
	assert.Equal(t, alice, *id.Current())
}

func TestIdentity_NilByDefault(t *testing.T) {
	assert.Nil(t, NewIdentity(nil).Current())
}

func TestIdentity_WatchNotifiesOnlyOnChange(t *testing.T) {
	id := NewIdentity(nil)

	var seen []*common.Address
	cancel := id.Watch(func(u *common.Address) { seen = append(seen, u) })

	id.Set(alice)
	id.Set(alice)
	id.Set(bob)
	id.Clear()
	id.Clear()

	require.Len(t, seen, 3)
	assert.Equal(t, alice, *seen[0])
	assert.Equal(t, bob, *seen[1])
	assert.Nil(t, seen[2])

	cancel()
	id.Set(alice)
	assert.Len(t, seen, 3)
}
