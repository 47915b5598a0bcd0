package processor

import (
	"context"
	"testing"

	"github.com/hengadev/errsx"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/monitoring"
	"github.com/hengadev/fieldcrypt/internal/registry"
	"github.com/hengadev/fieldcrypt/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

type staticKeys map[string]string

func (k staticKeys) KeyFor(table, field string) string {
	if key, ok := k[table+"."+field]; ok {
		return key
	}
	return testKey
}

type User struct {
	ID      int64
	Phone   string  `fieldcrypt:"encrypt"`
	Email   *string `fieldcrypt:"encrypt" db:"email_address"`
	Address string
}

type Legacy struct {
	Note   string `fieldcrypt:"encrypt,algorithm=DES"`
	Hidden string `fieldcrypt:"encrypt,enabled=false"`
	Age    int    `fieldcrypt:"encrypt"`
}

type Audit struct {
	Comment string `fieldcrypt:"encrypt"`
}

type OrderEntity struct {
	Audit
	Card string `fieldcrypt:"encrypt"`
}

type Customer struct {
	Name string `fieldcrypt:"encrypt"`
}

func (Customer) TableName() string { return "crm_customers" }

type Broken struct {
	Secret string `fieldcrypt:"encrypt,algorithm=ROT13"`
}

type manual struct {
	token string
	plain string
}

func (m *manual) EncryptableFields() []FieldRef {
	return []FieldRef{
		{Column: "token", Value: &m.token},
		{Column: "plain", Value: &m.plain, Disabled: true},
	}
}

func newTestProcessor(reg *registry.Registry, hook monitoring.ObservabilityHook) *Processor {
	if reg == nil {
		reg = registry.New()
	}
	return New(strategy.Default(strategy.AlgorithmAES), staticKeys{}, reg, nil, hook)
}

func ptr(s string) *string { return &s }

func TestApply_RoundTrip(t *testing.T) {
	p := newTestProcessor(nil, nil)
	ctx := context.Background()

	email := ptr("test@example.com")
	u := &User{ID: 1, Phone: "13800138000", Email: email, Address: "Beijing"}

	require.NoError(t, p.Apply(ctx, u, "", fcerr.Encrypt))
	assert.NotEqual(t, "13800138000", u.Phone)
	assert.NotEqual(t, "test@example.com", *u.Email)
	assert.Equal(t, "Beijing", u.Address)
	assert.Same(t, email, u.Email, "pointer fields are rewritten in place")

	want, err := strategy.NewAES().Encrypt("13800138000", testKey)
	require.NoError(t, err)
	assert.Equal(t, want, u.Phone)

	require.NoError(t, p.Apply(ctx, u, "", fcerr.Decrypt))
	assert.Equal(t, "13800138000", u.Phone)
	assert.Equal(t, "test@example.com", *u.Email)
	assert.Equal(t, "Beijing", u.Address)
}

func TestApply_DoubleEncryptIsNotIdempotent(t *testing.T) {
	p := newTestProcessor(nil, nil)
	ctx := context.Background()

	u := &User{Phone: "13800138000"}
	require.NoError(t, p.Apply(ctx, u, "", fcerr.Encrypt))
	once := u.Phone
	require.NoError(t, p.Apply(ctx, u, "", fcerr.Encrypt))
	assert.NotEqual(t, once, u.Phone)

	require.NoError(t, p.Apply(ctx, u, "", fcerr.Decrypt))
	assert.Equal(t, once, u.Phone)
	assert.NotEqual(t, "13800138000", u.Phone, "one decrypt leaves the first ciphertext")

	require.NoError(t, p.Apply(ctx, u, "", fcerr.Decrypt))
	assert.Equal(t, "13800138000", u.Phone)
}

type Phone string

type Contact struct {
	Mobile Phone  `fieldcrypt:"encrypt"`
	Home   *Phone `fieldcrypt:"encrypt"`
}

func TestApply_NamedStringTypes(t *testing.T) {
	p := newTestProcessor(nil, nil)
	ctx := context.Background()

	home := Phone("02112345678")
	c := &Contact{Mobile: "13800138000", Home: &home}
	require.NoError(t, p.Apply(ctx, c, "", fcerr.Encrypt))

	want, err := strategy.NewAES().Encrypt("13800138000", testKey)
	require.NoError(t, err)
	assert.Equal(t, Phone(want), c.Mobile)
	assert.NotEqual(t, Phone("02112345678"), *c.Home)
	assert.Same(t, &home, c.Home)

	require.NoError(t, p.Apply(ctx, c, "", fcerr.Decrypt))
	assert.Equal(t, Phone("13800138000"), c.Mobile)
	assert.Equal(t, Phone("02112345678"), *c.Home)
}

func TestApply_SkipsEmptyAndNil(t *testing.T) {
	p := newTestProcessor(nil, nil)
	u := &User{}
	require.NoError(t, p.Apply(context.Background(), u, "", fcerr.Encrypt))
	assert.Empty(t, u.Phone)
	assert.Nil(t, u.Email)

	assert.NoError(t, p.Apply(context.Background(), nil, "", fcerr.Encrypt))
	var nilUser *User
	assert.NoError(t, p.Apply(context.Background(), nilUser, "", fcerr.Encrypt))
}

func TestApply_TagOptions(t *testing.T) {
	p := newTestProcessor(nil, nil)
	l := &Legacy{Note: "hello", Hidden: "visible", Age: 42}

	require.NoError(t, p.Apply(context.Background(), l, "", fcerr.Encrypt))

	want, err := strategy.NewDES().Encrypt("hello", testKey)
	require.NoError(t, err)
	assert.Equal(t, want, l.Note)
	assert.Equal(t, "visible", l.Hidden)
	assert.Equal(t, 42, l.Age)
}

func TestApply_UnknownAlgorithmIsCollected(t *testing.T) {
	p := newTestProcessor(nil, nil)
	b := &Broken{Secret: "s3cret"}

	err := p.Apply(context.Background(), b, "", fcerr.Encrypt)
	require.Error(t, err)
	assert.Equal(t, "s3cret", b.Secret)

	errs, ok := err.(errsx.Map)
	require.True(t, ok)
	assert.Contains(t, errs, "Secret")
}

type failureRecorder struct {
	monitoring.NoOpObservabilityHook
	failures []error
}

func (r *failureRecorder) OnCryptoFailure(ctx context.Context, direction, algorithm string, err error, metadata map[string]any) {
	r.failures = append(r.failures, err)
}

func TestApply_DecryptFailureKeepsValue(t *testing.T) {
	recorder := &failureRecorder{}
	p := newTestProcessor(nil, recorder)

	u := &User{Phone: "not-base64!"}
	err := p.Apply(context.Background(), u, "", fcerr.Decrypt)
	require.Error(t, err)
	assert.Equal(t, "not-base64!", u.Phone)
	require.Len(t, recorder.failures, 1)
	assert.ErrorIs(t, recorder.failures[0], fcerr.ErrDecryptionFailed)

	errs, ok := err.(errsx.Map)
	require.True(t, ok)
	assert.Contains(t, errs, "Phone")
}

func TestApply_DecryptFailureCounted(t *testing.T) {
	collector := monitoring.NewInMemoryMetricsCollector()
	p := newTestProcessor(nil, monitoring.NewMetricsObservabilityHook(collector))

	u := &User{Phone: "not-base64!"}
	require.Error(t, p.Apply(context.Background(), u, "", fcerr.Decrypt))
	assert.Equal(t, int64(1), collector.SumCounter(monitoring.MetricCryptoFailures))
}

func TestApply_EmbeddedStruct(t *testing.T) {
	p := newTestProcessor(nil, nil)
	o := &OrderEntity{Audit: Audit{Comment: "fragile"}, Card: "4111"}

	require.NoError(t, p.Apply(context.Background(), o, "", fcerr.Encrypt))
	assert.NotEqual(t, "fragile", o.Comment)
	assert.NotEqual(t, "4111", o.Card)

	require.NoError(t, p.Apply(context.Background(), o, "", fcerr.Decrypt))
	assert.Equal(t, "fragile", o.Comment)
	assert.Equal(t, "4111", o.Card)
}

func TestApply_TableResolution(t *testing.T) {
	keys := staticKeys{
		"crm_customers.name": "crm-key-0123456789abcdef",
		"order.card":         "order-key-0123456789abcdef",
		"members.phone":      "member-key-0123456789abcdef",
	}
	reg := registry.New()
	reg.RegisterTypeMapping("User", "members")
	p := New(strategy.Default(strategy.AlgorithmAES), keys, reg, nil, nil)
	aes := strategy.NewAES()

	c := &Customer{Name: "Ada"}
	require.NoError(t, p.Apply(context.Background(), c, "", fcerr.Encrypt))
	want, _ := aes.Encrypt("Ada", keys["crm_customers.name"])
	assert.Equal(t, want, c.Name, "TableName wins over inference")

	o := &OrderEntity{Card: "4111"}
	require.NoError(t, p.Apply(context.Background(), o, "", fcerr.Encrypt))
	want, _ = aes.Encrypt("4111", keys["order.card"])
	assert.Equal(t, want, o.Card, "Entity suffix is dropped")

	u := &User{Phone: "555"}
	require.NoError(t, p.Apply(context.Background(), u, "", fcerr.Encrypt))
	want, _ = aes.Encrypt("555", keys["members.phone"])
	assert.Equal(t, want, u.Phone, "type mapping wins")

	u = &User{Phone: "555"}
	require.NoError(t, p.Apply(context.Background(), u, "accounts", fcerr.Encrypt))
	want, _ = aes.Encrypt("555", testKey)
	assert.Equal(t, want, u.Phone, "explicit table wins")
}

func TestApply_Collections(t *testing.T) {
	p := newTestProcessor(nil, nil)
	ctx := context.Background()

	users := []User{{Phone: "1"}, {Phone: "2"}}
	require.NoError(t, p.Apply(ctx, users, "", fcerr.Encrypt))
	assert.NotEqual(t, "1", users[0].Phone)
	assert.NotEqual(t, "2", users[1].Phone)

	ptrs := []*User{{Phone: "3"}, nil}
	require.NoError(t, p.Apply(ctx, &ptrs, "", fcerr.Encrypt))
	assert.NotEqual(t, "3", ptrs[0].Phone)

	require.NoError(t, p.Apply(ctx, users, "", fcerr.Decrypt))
	assert.Equal(t, "1", users[0].Phone)
	assert.Equal(t, "2", users[1].Phone)
}

func TestApply_Maps(t *testing.T) {
	reg := registry.New()
	reg.RegisterFields("user", []string{"phone"})
	p := newTestProcessor(reg, nil)
	ctx := context.Background()

	row := map[string]any{"phone": "13800138000", "name": "Ada", "age": 3}
	require.NoError(t, p.Apply(ctx, row, "user", fcerr.Encrypt))
	assert.NotEqual(t, "13800138000", row["phone"])
	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, 3, row["age"])

	require.NoError(t, p.Apply(ctx, row, "user", fcerr.Decrypt))
	assert.Equal(t, "13800138000", row["phone"])

	flat := map[string]string{"phone": "123", "name": "Ada"}
	require.NoError(t, p.Apply(ctx, flat, "user", fcerr.Encrypt))
	assert.NotEqual(t, "123", flat["phone"])
	assert.Equal(t, "Ada", flat["name"])

	err := p.Apply(ctx, map[string]any{"phone": "1"}, "", fcerr.Encrypt)
	errs, ok := err.(errsx.Map)
	require.True(t, ok)
	assert.Contains(t, errs, "map")
}

func TestApply_FieldProvider(t *testing.T) {
	p := newTestProcessor(nil, nil)
	m := &manual{token: "abc", plain: "keep"}

	require.NoError(t, p.Apply(context.Background(), m, "manual", fcerr.Encrypt))
	assert.NotEqual(t, "abc", m.token)
	assert.Equal(t, "keep", m.plain)

	require.NoError(t, p.Apply(context.Background(), m, "manual", fcerr.Decrypt))
	assert.Equal(t, "abc", m.token)
}

func TestApply_NonPointerStruct(t *testing.T) {
	p := newTestProcessor(nil, nil)
	err := p.Apply(context.Background(), User{Phone: "1"}, "", fcerr.Encrypt)
	errs, ok := err.(errsx.Map)
	require.True(t, ok)
	assert.Contains(t, errs, "processor.User")

	assert.NoError(t, p.Apply(context.Background(), struct{ A string }{"x"}, "", fcerr.Encrypt))
}

func TestApply_InvalidDirection(t *testing.T) {
	p := newTestProcessor(nil, nil)
	err := p.Apply(context.Background(), &User{}, "", fcerr.Rewrite)
	assert.ErrorIs(t, err, fcerr.ErrInvalidConfiguration)
}

func TestApply_ReportsProcessedFields(t *testing.T) {
	collector := monitoring.NewInMemoryMetricsCollector()
	p := newTestProcessor(nil, monitoring.NewMetricsObservabilityHook(collector))

	u := &User{Phone: "1", Email: ptr("a@b.c")}
	require.NoError(t, p.Apply(context.Background(), u, "", fcerr.Encrypt))
	assert.Equal(t, int64(2), collector.SumCounter(monitoring.MetricFieldsProcessed))
}
