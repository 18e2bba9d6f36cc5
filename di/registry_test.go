package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifier interface {
	Notify() string
}

type emailNotifier struct{}

func (emailNotifier) Notify() string { return "email" }

type smsNotifier struct{}

func (smsNotifier) Notify() string { return "sms" }

func notifierRegistration(t *testing.T, n notifier, opts ...RegistrationOption) *ComponentRegistration {
	t.Helper()
	reg, err := NewRegistration(func(ResolveContext, Parameters) (any, error) {
		return n, nil
	}, append([]RegistrationOption{As[notifier]()}, opts...)...)
	require.NoError(t, err)
	return reg
}

func TestRegistryDefaultIsFirstRegistered(t *testing.T) {
	email := notifierRegistration(t, emailNotifier{})
	sms := notifierRegistration(t, smsNotifier{})
	registry := MustNewComponentRegistry(email, sms)

	reg, ok := registry.Default(ServiceOf[notifier]())
	require.True(t, ok)
	assert.Same(t, email, reg)

	all, ok := registry.Lookup(ServiceOf[notifier]())
	require.True(t, ok)
	assert.Equal(t, []*ComponentRegistration{email, sms}, all)

	n, err := Resolve[notifier](NewRootScope(registry))
	require.NoError(t, err)
	assert.Equal(t, "email", n.Notify())
}

func TestRegistryAsDefaultWins(t *testing.T) {
	email := notifierRegistration(t, emailNotifier{})
	sms := notifierRegistration(t, smsNotifier{}, AsDefault())
	registry := MustNewComponentRegistry(email, sms)

	reg, ok := registry.Default(ServiceOf[notifier]())
	require.True(t, ok)
	assert.Same(t, sms, reg)
}

func TestRegistryLookupReturnsCopy(t *testing.T) {
	registry := MustNewComponentRegistry(notifierRegistration(t, emailNotifier{}))

	all, _ := registry.Lookup(ServiceOf[notifier]())
	all[0] = nil

	again, ok := registry.Lookup(ServiceOf[notifier]())
	require.True(t, ok)
	assert.NotNil(t, again[0])

	_, ok = registry.Lookup(ServiceOf[string]())
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidInput(t *testing.T) {
	reg := notifierRegistration(t, emailNotifier{})

	_, err := NewComponentRegistry(reg, reg)
	assert.Error(t, err)
	_, err = NewComponentRegistry(nil)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewComponentRegistry(reg, reg) })
}

func TestRegistryByID(t *testing.T) {
	reg := notifierRegistration(t, emailNotifier{})
	registry := MustNewComponentRegistry(reg)

	got, ok := registry.Registration(reg.ID())
	require.True(t, ok)
	assert.Same(t, reg, got)
	assert.True(t, registry.IsRegistered(ServiceOf[notifier]()))
	assert.False(t, registry.IsRegistered(NamedServiceOf[notifier]("other")))
	assert.Len(t, registry.Registrations(), 1)
}

func TestRegistrationDefaults(t *testing.T) {
	reg := notifierRegistration(t, emailNotifier{})

	assert.Equal(t, Unshared, reg.Sharing())
	assert.Equal(t, OwnedBySelf, reg.Ownership())
	assert.False(t, reg.ExternallyOwned())
	assert.Equal(t, []Service{ServiceOf[notifier]()}, reg.Services())
	assert.Equal(t, "di.notifier [Unshared, Self]", reg.String())
}

func TestRegistrationOptions(t *testing.T) {
	reg, err := NewRegistration(func(ResolveContext, Parameters) (any, error) {
		return emailNotifier{}, nil
	},
		As[notifier](),
		AsNamed[notifier]("email"),
		As[notifier](),
		InstancePerLifetimeScope(),
		OwnedByRootScope(),
		ExternallyOwned(),
	)
	require.NoError(t, err)

	assert.Equal(t, []Service{ServiceOf[notifier](), NamedServiceOf[notifier]("email")}, reg.Services())
	assert.Equal(t, SharedInScope, reg.Sharing())
	assert.Equal(t, OwnedByRoot, reg.Ownership())
	assert.True(t, reg.ExternallyOwned())
}

func TestSingleInstanceIsOwnedByRoot(t *testing.T) {
	reg := notifierRegistration(t, emailNotifier{}, SingleInstance())
	assert.True(t, reg.ownedByRoot())
	assert.Equal(t, "SingleInstance", reg.Sharing().String())
}

func TestNewRegistrationValidation(t *testing.T) {
	_, err := NewRegistration(nil, As[notifier]())
	assert.Error(t, err)

	_, err = NewRegistration(func(ResolveContext, Parameters) (any, error) {
		return emailNotifier{}, nil
	})
	assert.Error(t, err, "a registration must expose at least one service")

	_, err = RegisterInstance(nil, As[notifier]())
	assert.Error(t, err)

	_, err = Provide[notifier](nil)
	assert.Error(t, err)
}

func TestRegisterInstance(t *testing.T) {
	reg, err := RegisterInstance(emailNotifier{}, As[notifier]())
	require.NoError(t, err)

	assert.Equal(t, SharedSingleInstance, reg.Sharing())
	assert.True(t, reg.ExternallyOwned())
}

func TestServiceString(t *testing.T) {
	assert.Equal(t, "di.notifier", ServiceOf[notifier]().String())
	assert.Equal(t, "string(name=primary)", NamedServiceOf[string]("primary").String())
	assert.Equal(t, "<nil>", Service{}.String())
	assert.Equal(t, ServiceOf[int](), TypedService(TypeOf[int]()))
	assert.Equal(t, NamedServiceOf[int]("n"), NamedService("n", TypeOf[int]()))
	assert.NotEqual(t, ServiceOf[int](), NamedServiceOf[int]("n"))
}
