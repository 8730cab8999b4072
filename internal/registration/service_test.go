package registration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/storefront/internal/clock"
	mailer "github.com/hitoshi/storefront/internal/mail"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// --- fakes ---

// memoryAccounts はAccountRepositoryとAccountTxのインメモリ実装。
// RunInTxはfnが失敗した場合に開始前の状態へ戻す。
type memoryAccounts struct {
	accounts map[string]*model.AccountWithProfile

	// beforeCreate はCreatePendingの直前に1度だけ呼ばれる。並行登録の再現に使う。
	beforeCreate func(m *memoryAccounts) error
	// concurrent は別トランザクションでコミットされた行。ロールバックの影響を受けない。
	concurrent map[string]*model.AccountWithProfile
	findErr    error

	// beforeActivate はActivateの直前に1度だけ呼ばれる。読み込み後の並行更新の再現に使う。
	beforeActivate func(m *memoryAccounts)
	activateErr    error
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: map[string]*model.AccountWithProfile{}}
}

func (m *memoryAccounts) snapshot() map[string]*model.AccountWithProfile {
	out := make(map[string]*model.AccountWithProfile, len(m.accounts))
	for id, a := range m.accounts {
		c := *a
		out[id] = &c
	}
	return out
}

func (m *memoryAccounts) find(match func(*model.AccountWithProfile) bool) *model.Account {
	for _, a := range m.accounts {
		if match(a) {
			c := a.Account
			return &c
		}
	}
	return nil
}

func (m *memoryAccounts) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return m.find(func(a *model.AccountWithProfile) bool { return a.ID == id }), nil
}

func (m *memoryAccounts) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return m.find(func(a *model.AccountWithProfile) bool { return a.Email == email }), nil
}

func (m *memoryAccounts) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return m.find(func(a *model.AccountWithProfile) bool { return a.Username == username }), nil
}

func (m *memoryAccounts) FindWithProfile(ctx context.Context, id string) (*model.AccountWithProfile, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (m *memoryAccounts) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.AccountTx) error) error {
	saved := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.accounts = saved
		for id, a := range m.concurrent {
			m.accounts[id] = a
		}
		m.concurrent = nil
		return err
	}
	return nil
}

func (m *memoryAccounts) Activate(ctx context.Context, id, code string, now time.Time) (bool, error) {
	if hook := m.beforeActivate; hook != nil {
		m.beforeActivate = nil
		hook(m)
	}
	if m.activateErr != nil {
		return false, m.activateErr
	}
	a, ok := m.accounts[id]
	if !ok || a.IsActive || a.Profile.OTPCode == nil || *a.Profile.OTPCode != code {
		return false, nil
	}
	a.IsActive = true
	a.UpdatedAt = now
	a.Profile.OTPCode = nil
	a.Profile.OTPIssuedAt = nil
	return true, nil
}

func (m *memoryAccounts) DeleteByID(ctx context.Context, id string) error {
	delete(m.accounts, id)
	return nil
}

func (m *memoryAccounts) UpdateProfile(ctx context.Context, p *model.Profile) error {
	return nil
}

func (m *memoryAccounts) CountActive(ctx context.Context) (int, error) {
	n := 0
	for _, a := range m.accounts {
		if a.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *memoryAccounts) FindByEmailForUpdate(ctx context.Context, email string) (*model.Account, error) {
	return m.FindByEmail(ctx, email)
}

func (m *memoryAccounts) CreatePending(ctx context.Context, account *model.Account) error {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		if err := hook(m); err != nil {
			return err
		}
	}
	for _, a := range m.accounts {
		if a.Email == account.Email {
			return repository.ErrEmailTaken
		}
		if a.Username == account.Username {
			return repository.ErrUsernameTaken
		}
	}
	m.accounts[account.ID] = &model.AccountWithProfile{
		Account: *account,
		Profile: model.Profile{AccountID: account.ID},
	}
	return nil
}

func (m *memoryAccounts) UpdatePending(ctx context.Context, account *model.Account) error {
	a, ok := m.accounts[account.ID]
	if !ok || a.IsActive {
		return nil
	}
	a.Username = account.Username
	a.PasswordHash = account.PasswordHash
	a.UpdatedAt = account.UpdatedAt
	return nil
}

func (m *memoryAccounts) SetOTP(ctx context.Context, accountID, code string, issuedAt time.Time) error {
	a, ok := m.accounts[accountID]
	if !ok {
		return errors.New("account not found")
	}
	a.Profile.OTPCode = &code
	a.Profile.OTPIssuedAt = &issuedAt
	return nil
}

// fakeBinder はsession.Binderのインメモリ実装。
type fakeBinder struct {
	pending  string
	loggedIn string
	bindErr  error
}

func (b *fakeBinder) PendingAccountID(ctx context.Context) (string, bool, error) {
	return b.pending, b.pending != "", nil
}

func (b *fakeBinder) BindPending(ctx context.Context, accountID string) error {
	if b.bindErr != nil {
		return b.bindErr
	}
	b.pending = accountID
	return nil
}

func (b *fakeBinder) ClearPending(ctx context.Context) error {
	b.pending = ""
	return nil
}

func (b *fakeBinder) Login(ctx context.Context, accountID string) error {
	b.loggedIn = accountID
	return nil
}

// outbox は送信されたメールを記録するSender。
type outbox struct {
	sent []mailer.Message
	err  error
}

func (o *outbox) Send(ctx context.Context, msg mailer.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

// mockMetrics は登録・確認メトリクスの呼び出しを記録する。
type mockMetrics struct {
	metrics.Nop
	registrations []string
	verifications []string
}

func (m *mockMetrics) RecordRegistration(outcome string) {
	m.registrations = append(m.registrations, outcome)
}

func (m *mockMetrics) RecordVerification(result string) {
	m.verifications = append(m.verifications, result)
}

type fixture struct {
	svc      *Service
	accounts *memoryAccounts
	outbox   *outbox
	clock    *clock.Manual
	metrics  *mockMetrics
	codes    []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: newMemoryAccounts(),
		outbox:   &outbox{},
		clock:    clock.NewManual(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)),
		metrics:  &mockMetrics{},
	}
	f.svc = NewService(f.accounts, f.outbox, f.clock, f.metrics, "shop@example.com")
	f.svc.hashCost = bcrypt.MinCost
	f.svc.generateCode = func() (string, error) {
		code := "123456"
		if len(f.codes) > 0 {
			code, f.codes = f.codes[0], f.codes[1:]
		}
		return code, nil
	}
	return f
}

func (f *fixture) register(t *testing.T, b *fakeBinder, email, username string) *IssueResult {
	t.Helper()
	res, err := f.svc.Issue(context.Background(), b, RegisterInput{Email: email, Username: username, Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Issue がエラーを返した: %v", err)
	}
	return res
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError ではない: %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %s, want %s", apiErr.Code, code)
	}
}

// --- Issue ---

func TestIssue_CreatesPendingAccountAndSendsCode(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	f.codes = []string{"042917"}

	res := f.register(t, b, "Alice@Example.com", "alice")

	if !res.Emailed || res.Reused {
		t.Errorf("結果が不正: %+v", res)
	}
	stored := f.accounts.accounts[res.Account.ID]
	if stored == nil {
		t.Fatal("アカウントが保存されていない")
	}
	if stored.IsActive {
		t.Error("登録直後のアカウントが有効になっている")
	}
	if stored.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased", stored.Email)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret-pass")) != nil {
		t.Error("パスワードハッシュが一致しない")
	}
	if *stored.Profile.OTPCode != "042917" || !stored.Profile.OTPIssuedAt.Equal(f.clock.Now()) {
		t.Errorf("OTPが不正: %+v", stored.Profile)
	}
	if b.pending != res.Account.ID {
		t.Errorf("セッションに紐付いていない: pending=%q", b.pending)
	}
	if len(f.outbox.sent) != 1 {
		t.Fatalf("送信メール数 = %d, want 1", len(f.outbox.sent))
	}
	msg := f.outbox.sent[0]
	if msg.From != "shop@example.com" || msg.To[0] != "alice@example.com" || !strings.Contains(msg.Body, "042917") {
		t.Errorf("メール内容が不正: %+v", msg)
	}
	if len(f.metrics.registrations) != 1 || f.metrics.registrations[0] != outcomeCreated {
		t.Errorf("registrations = %v", f.metrics.registrations)
	}
}

func TestIssue_ReusesPendingAccount(t *testing.T) {
	f := newFixture(t)
	f.codes = []string{"111111", "222222"}

	first := f.register(t, &fakeBinder{}, "carol@example.com", "carol")
	f.clock.Advance(30 * time.Minute)
	b := &fakeBinder{}
	res, err := f.svc.Issue(context.Background(), b, RegisterInput{Email: "carol@example.com", Username: "carol2", Password: "another-pass"})
	if err != nil {
		t.Fatalf("Issue がエラーを返した: %v", err)
	}

	if !res.Reused || res.Account.ID != first.Account.ID {
		t.Errorf("既存アカウントが再利用されていない: %+v", res)
	}
	if len(f.accounts.accounts) != 1 {
		t.Errorf("アカウント数 = %d, want 1", len(f.accounts.accounts))
	}
	stored := f.accounts.accounts[first.Account.ID]
	if stored.Username != "carol2" {
		t.Errorf("Username = %q, want carol2", stored.Username)
	}
	if *stored.Profile.OTPCode != "222222" || !stored.Profile.OTPIssuedAt.Equal(f.clock.Now()) {
		t.Errorf("OTPが再発行されていない: %+v", stored.Profile)
	}
	if b.pending != first.Account.ID {
		t.Errorf("pending = %q", b.pending)
	}
}

func TestIssue_RejectsActiveEmail(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, &fakeBinder{}, "dave@example.com", "dave")
	f.accounts.Activate(context.Background(), res.Account.ID, "123456", f.clock.Now())

	b := &fakeBinder{}
	_, err := f.svc.Issue(context.Background(), b, RegisterInput{Email: "dave@example.com", Username: "dave2", Password: "password1"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
	if !strings.Contains(err.Error(), "email") {
		t.Errorf("エラーにフィールド名が含まれない: %v", err)
	}
	if b.pending != "" {
		t.Error("拒否された登録がセッションに紐付いた")
	}
}

func TestIssue_RejectsUsernameHeldByAnotherAccount(t *testing.T) {
	f := newFixture(t)
	f.register(t, &fakeBinder{}, "erin@example.com", "erin")

	_, err := f.svc.Issue(context.Background(), &fakeBinder{}, RegisterInput{Email: "other@example.com", Username: "erin", Password: "password1"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
	if !strings.Contains(err.Error(), "username") {
		t.Errorf("エラーにフィールド名が含まれない: %v", err)
	}
	if len(f.accounts.accounts) != 1 {
		t.Errorf("アカウント数 = %d, want 1", len(f.accounts.accounts))
	}
}

func TestIssue_RetriesOnceOnConcurrentInsert(t *testing.T) {
	f := newFixture(t)
	racerID := "racer-account"
	f.accounts.beforeCreate = func(m *memoryAccounts) error {
		// 別リクエストが先に同じメールアドレスで挿入してコミットした
		m.concurrent = map[string]*model.AccountWithProfile{
			racerID: {
				Account: model.Account{ID: racerID, Username: "racer", Email: "frank@example.com"},
				Profile: model.Profile{AccountID: racerID},
			},
		}
		return repository.ErrEmailTaken
	}

	b := &fakeBinder{}
	res, err := f.svc.Issue(context.Background(), b, RegisterInput{Email: "frank@example.com", Username: "frank", Password: "password1"})
	if err != nil {
		t.Fatalf("Issue がエラーを返した: %v", err)
	}
	if !res.Reused || res.Account.ID != racerID || !res.Emailed {
		t.Errorf("再試行で先行したアカウントが再利用されていない: %+v", res)
	}
	if len(f.accounts.accounts) != 1 || f.accounts.accounts[racerID].Username != "frank" {
		t.Errorf("アカウントの状態が不正: %+v", f.accounts.accounts)
	}
	if b.pending != racerID {
		t.Errorf("pending = %q, want %q", b.pending, racerID)
	}
}

func TestIssue_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"メールアドレスなし", RegisterInput{Email: "", Username: "u", Password: "password"}, "email"},
		{"メールアドレス形式不正", RegisterInput{Email: "not-an-email", Username: "u", Password: "password"}, "email"},
		{"表示名付き", RegisterInput{Email: "Bob <bob@example.com>", Username: "u", Password: "password"}, "email"},
		{"ユーザー名なし", RegisterInput{Email: "u@example.com", Username: " ", Password: "password"}, "username"},
		{"ユーザー名に空白", RegisterInput{Email: "u@example.com", Username: "a b", Password: "password"}, "username"},
		{"ユーザー名が長すぎる", RegisterInput{Email: "u@example.com", Username: strings.Repeat("a", 151), Password: "password"}, "username"},
		{"パスワードが短い", RegisterInput{Email: "u@example.com", Username: "u", Password: "abcd"}, "password"},
		{"パスワードが長すぎる", RegisterInput{Email: "u@example.com", Username: "u", Password: strings.Repeat("x", 129)}, "password"},
		{"ユーザー名と同じパスワード", RegisterInput{Email: "u@example.com", Username: "alice", Password: "Alice"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Issue(context.Background(), &fakeBinder{}, tt.input)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
			if !strings.HasPrefix(err.(*model.APIError).Message, tt.field) {
				t.Errorf("Message = %q, want field %s", err.(*model.APIError).Message, tt.field)
			}
			if len(f.accounts.accounts) != 0 || len(f.outbox.sent) != 0 {
				t.Error("検証エラーなのに副作用が発生した")
			}
		})
	}
}

func TestIssue_EmailFailureKeepsPendingAccount(t *testing.T) {
	f := newFixture(t)
	f.outbox.err = errors.New("smtp: connection refused")
	b := &fakeBinder{}

	res, err := f.svc.Issue(context.Background(), b, RegisterInput{Email: "gina@example.com", Username: "gina", Password: "password1"})

	var deliveryErr *EmailDeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("EmailDeliveryError ではない: %v", err)
	}
	assertAPIErrorCode(t, err, model.ErrCodeEmailDelivery)
	if res == nil || res.Emailed {
		t.Fatalf("結果が不正: %+v", res)
	}
	if _, ok := f.accounts.accounts[res.Account.ID]; !ok {
		t.Error("メール送信失敗でアカウントが削除された")
	}
	if b.pending != res.Account.ID {
		t.Error("メール送信失敗でセッションの紐付けが外れた")
	}
	if f.metrics.registrations[0] != outcomeEmailFailed {
		t.Errorf("registrations = %v", f.metrics.registrations)
	}
}

func TestIssue_BindFailureReturnsError(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{bindErr: model.NewSessionExpiredError()}

	_, err := f.svc.Issue(context.Background(), b, RegisterInput{Email: "h@example.com", Username: "h", Password: "password1"})
	assertAPIErrorCode(t, err, model.ErrCodeSessionExpired)
	if len(f.outbox.sent) != 0 {
		t.Error("紐付けに失敗したのにメールが送信された")
	}
}

// --- Verify ---

func TestVerify_MismatchThenVerified(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	f.codes = []string{"123456"}
	res := f.register(t, b, "alice@example.com", "alice")

	f.clock.Advance(10 * time.Minute)
	got, err := f.svc.Verify(context.Background(), b, "654321")
	if err != nil || got != Mismatch {
		t.Fatalf("Verify = %v, %v; want Mismatch", got, err)
	}
	stored := f.accounts.accounts[res.Account.ID]
	if stored.IsActive || !stored.Profile.HasOTP() || b.pending == "" {
		t.Error("不一致でアカウントまたはセッションが変更された")
	}

	got, err = f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != Verified {
		t.Fatalf("Verify = %v, %v; want Verified", got, err)
	}
	stored = f.accounts.accounts[res.Account.ID]
	if !stored.IsActive || stored.Profile.HasOTP() {
		t.Errorf("有効化されていない: %+v", stored)
	}
	if b.pending != "" || b.loggedIn != res.Account.ID {
		t.Errorf("セッションが不正: pending=%q loggedIn=%q", b.pending, b.loggedIn)
	}
	if want := []string{"mismatch", "verified"}; strings.Join(f.metrics.verifications, ",") != strings.Join(want, ",") {
		t.Errorf("verifications = %v, want %v", f.metrics.verifications, want)
	}
}

func TestVerify_CodeComparisonIsExact(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	f.register(t, b, "ivan@example.com", "ivan")

	for _, code := range []string{" 123456", "123456 ", "12345", ""} {
		got, _ := f.svc.Verify(context.Background(), b, code)
		if got != Mismatch {
			t.Errorf("Verify(%q) = %v, want Mismatch", code, got)
		}
	}
}

func TestVerify_ExpiredCorrectCodeDeletesAccount(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "bob@example.com", "bob")

	f.clock.Advance(OTPExpiry)
	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != Expired {
		t.Fatalf("Verify = %v, %v; want Expired", got, err)
	}
	if _, ok := f.accounts.accounts[res.Account.ID]; ok {
		t.Error("期限切れのアカウントが削除されていない")
	}
	if b.pending != "" || b.loggedIn != "" {
		t.Errorf("セッションが不正: %+v", b)
	}

	got, _ = f.svc.Verify(context.Background(), b, "123456")
	if got != NoPendingVerification {
		t.Errorf("2回目の Verify = %v, want NoPendingVerification", got)
	}
}

func TestVerify_JustBeforeExpiryStillVerifies(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	f.register(t, b, "judy@example.com", "judy")

	f.clock.Advance(OTPExpiry - time.Second)
	if got, _ := f.svc.Verify(context.Background(), b, "123456"); got != Verified {
		t.Errorf("Verify = %v, want Verified", got)
	}
}

func TestVerify_NoPendingBinding(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.Verify(context.Background(), &fakeBinder{}, "123456")
	if err != nil || got != NoPendingVerification {
		t.Errorf("Verify = %v, %v; want NoPendingVerification", got, err)
	}
}

func TestVerify_AccountMissing(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "kate@example.com", "kate")
	f.accounts.DeleteByID(context.Background(), res.Account.ID)

	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != AccountMissing {
		t.Fatalf("Verify = %v, %v; want AccountMissing", got, err)
	}
	if b.pending != "" {
		t.Error("紐付けが消去されていない")
	}
}

func TestVerify_AlreadyActiveElsewhere(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "leo@example.com", "leo")
	f.accounts.Activate(context.Background(), res.Account.ID, "123456", f.clock.Now())

	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != NoPendingVerification {
		t.Fatalf("Verify = %v, %v; want NoPendingVerification", got, err)
	}
	if b.pending != "" || b.loggedIn != "" {
		t.Errorf("セッションが不正: %+v", b)
	}
}

func TestVerify_MissingIssuedAtIsExpired(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "mia@example.com", "mia")
	f.accounts.accounts[res.Account.ID].Profile.OTPIssuedAt = nil

	if got, _ := f.svc.Verify(context.Background(), b, "123456"); got != Expired {
		t.Errorf("Verify = %v, want Expired", got)
	}
}

func TestVerify_CodeReissuedAfterReadIsMismatch(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "nina@example.com", "nina")
	f.accounts.beforeActivate = func(m *memoryAccounts) {
		m.SetOTP(context.Background(), res.Account.ID, "999999", f.clock.Now())
	}

	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != Mismatch {
		t.Fatalf("Verify = %v, %v; want Mismatch", got, err)
	}
	if f.accounts.accounts[res.Account.ID].IsActive {
		t.Error("再発行前のコードでアカウントが有効化された")
	}
	if b.loggedIn != "" || b.pending != res.Account.ID {
		t.Errorf("セッションが不正: %+v", b)
	}

	if got, _ := f.svc.Verify(context.Background(), b, "999999"); got != Verified {
		t.Errorf("再発行後のコードでVerify = %v, want Verified", got)
	}
}

func TestVerify_AccountDeletedAfterReadIsMissing(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "omar@example.com", "omar")
	f.accounts.beforeActivate = func(m *memoryAccounts) {
		m.DeleteByID(context.Background(), res.Account.ID)
	}

	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != AccountMissing {
		t.Fatalf("Verify = %v, %v; want AccountMissing", got, err)
	}
	if b.loggedIn != "" {
		t.Errorf("削除済みアカウントでログインした: %q", b.loggedIn)
	}
	if b.pending != "" {
		t.Error("紐付けが消去されていない")
	}
}

func TestVerify_ActivatedElsewhereAfterRead(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	res := f.register(t, b, "pia@example.com", "pia")
	f.accounts.beforeActivate = func(m *memoryAccounts) {
		m.accounts[res.Account.ID].IsActive = true
	}

	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err != nil || got != NoPendingVerification {
		t.Fatalf("Verify = %v, %v; want NoPendingVerification", got, err)
	}
	if b.loggedIn != "" || b.pending != "" {
		t.Errorf("セッションが不正: %+v", b)
	}
}

func TestVerify_ActivateErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	b := &fakeBinder{}
	f.register(t, b, "quin@example.com", "quin")
	f.accounts.activateErr = errors.New("connection reset")

	got, err := f.svc.Verify(context.Background(), b, "123456")
	if err == nil {
		t.Fatal("有効化の失敗でエラーが返されなかった")
	}
	if got != NoPendingVerification {
		t.Errorf("Verify = %v, want NoPendingVerification", got)
	}
	if b.loggedIn != "" {
		t.Errorf("有効化に失敗したのにログインした: %q", b.loggedIn)
	}
	if len(f.metrics.verifications) != 0 {
		t.Errorf("基盤エラー時に結果が記録された: %v", f.metrics.verifications)
	}
}

func TestVerify_InfrastructureErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	f.accounts.findErr = errors.New("connection reset")
	b := &fakeBinder{pending: "some-id"}

	if _, err := f.svc.Verify(context.Background(), b, "123456"); err == nil {
		t.Fatal("DB障害でエラーが返されなかった")
	}
	if len(f.metrics.verifications) != 0 {
		t.Errorf("基盤エラー時に結果が記録された: %v", f.metrics.verifications)
	}
}

func TestVerifyResult_Err(t *testing.T) {
	tests := []struct {
		result VerifyResult
		code   string
	}{
		{NoPendingVerification, model.ErrCodeSessionExpired},
		{AccountMissing, model.ErrCodeAccountMissing},
		{Expired, model.ErrCodeOTPExpired},
		{Mismatch, model.ErrCodeOTPMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			assertAPIErrorCode(t, tt.result.Err(), tt.code)
		})
	}
	if Verified.Err() != nil {
		t.Error("Verified.Err() は nil であるべき")
	}
}
