package tokenstore

import (
	"sync"
	"testing"
	"time"
)

func TestCreateVerify_RoundTrip(t *testing.T) {
	s := New(3)

	token, pin, err := s.Create("/tmp/scan.pdf", time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}
	if len(pin) != 4 {
		t.Fatalf("PIN: хотели 4 цифры, получили %q", pin)
	}

	out := s.Verify(token, pin)
	if out.State != StateSuccess {
		t.Fatalf("Первая проверка: хотели %s, получили %s", StateSuccess, out.State)
	}
	if out.FilePath != "/tmp/scan.pdf" {
		t.Errorf("FilePath: хотели /tmp/scan.pdf, получили %q", out.FilePath)
	}

	// Повторная проверка с верным PIN — ссылка уже использована
	out = s.Verify(token, pin)
	if out.State != StateUsed {
		t.Errorf("Повторная проверка: хотели %s, получили %s", StateUsed, out.State)
	}
}

func TestVerify_UnknownToken(t *testing.T) {
	s := New(3)

	out := s.Verify("нет-такого-токена", "0000")
	if out.State != StateAbsent {
		t.Errorf("Хотели %s, получили %s", StateAbsent, out.State)
	}
}

func TestVerify_ExpiredEqualsAbsent(t *testing.T) {
	s := New(3)

	// Токен с уже истёкшим TTL
	token, pin, err := s.Create("/tmp/scan.pdf", -time.Second)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}

	out := s.Verify(token, pin)
	if out.State != StateAbsent {
		t.Errorf("Истёкший токен: хотели %s, получили %s", StateAbsent, out.State)
	}

	// Lazy deletion: запись удалена как побочный эффект
	if s.Len() != 0 {
		t.Errorf("Запись не удалена при lazy expiry: осталось %d", s.Len())
	}
}

func TestVerify_PinMismatchAndLock(t *testing.T) {
	s := New(3)

	token, pin, err := s.Create("/tmp/scan.pdf", time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}
	wrong := "0000"
	if wrong == pin {
		wrong = "0001"
	}

	// 1-я и 2-я неудачные попытки: PinMismatch с убывающим остатком
	out := s.Verify(token, wrong)
	if out.State != StatePinMismatch || out.Remaining != 2 {
		t.Errorf("Попытка 1: хотели %s remaining=2, получили %s remaining=%d",
			StatePinMismatch, out.State, out.Remaining)
	}

	out = s.Verify(token, wrong)
	if out.State != StatePinMismatch || out.Remaining != 1 {
		t.Errorf("Попытка 2: хотели %s remaining=1, получили %s remaining=%d",
			StatePinMismatch, out.State, out.Remaining)
	}

	// 3-я попытка исчерпывает лимит — блокировка
	out = s.Verify(token, wrong)
	if out.State != StateLocked {
		t.Errorf("Попытка 3: хотели %s, получили %s", StateLocked, out.State)
	}

	// Верный PIN после блокировки не помогает
	out = s.Verify(token, pin)
	if out.State != StateLocked {
		t.Errorf("Верный PIN после блокировки: хотели %s, получили %s", StateLocked, out.State)
	}
}

func TestLookup_HidesPIN(t *testing.T) {
	s := New(3)

	token, _, err := s.Create("/tmp/scan.pdf", time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}

	rec := s.Lookup(token)
	if rec == nil {
		t.Fatal("Lookup вернул nil для живого токена")
	}
	if rec.PIN != "" {
		t.Errorf("Lookup раскрыл PIN: %q", rec.PIN)
	}
}

func TestLookup_ExpiredPurged(t *testing.T) {
	s := New(3)

	token, _, err := s.Create("/tmp/scan.pdf", -time.Minute)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}

	if rec := s.Lookup(token); rec != nil {
		t.Errorf("Lookup вернул истёкший токен: %+v", rec)
	}
	if s.Len() != 0 {
		t.Errorf("Истёкшая запись не удалена: осталось %d", s.Len())
	}

	// Повторный Lookup по уже удалённой записи — no-op, без паники
	if rec := s.Lookup(token); rec != nil {
		t.Errorf("Повторный Lookup вернул запись: %+v", rec)
	}
}

func TestInvalidate_Idempotent(t *testing.T) {
	s := New(3)

	token, pin, err := s.Create("/tmp/scan.pdf", time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}

	s.Invalidate(token)
	s.Invalidate(token)             // повторно — no-op
	s.Invalidate("несуществующий") // отсутствующий — no-op

	out := s.Verify(token, pin)
	if out.State != StateUsed {
		t.Errorf("После Invalidate: хотели %s, получили %s", StateUsed, out.State)
	}
}

func TestSweep_RemovesExpiredRegardlessOfState(t *testing.T) {
	s := New(3)

	// Истёкший used
	t1, p1, _ := s.Create("/tmp/a.pdf", time.Minute)
	s.Verify(t1, p1)
	// Истёкший locked
	t2, p2, _ := s.Create("/tmp/b.pdf", time.Minute)
	wrong := "0000"
	if wrong == p2 {
		wrong = "0001"
	}
	for i := 0; i < 3; i++ {
		s.Verify(t2, wrong)
	}
	// Живой токен
	t3, _, _ := s.Create("/tmp/c.pdf", 2*time.Hour)

	removed := s.Sweep(time.Now().UTC().Add(time.Hour))
	if len(removed) != 2 {
		t.Fatalf("Sweep: хотели 2 удалённых, получили %d", len(removed))
	}
	if s.Len() != 1 {
		t.Errorf("После sweep: хотели 1 запись, осталось %d", s.Len())
	}
	if rec := s.Lookup(t3); rec == nil {
		t.Error("Живой токен удалён sweep'ом")
	}
}

func TestVerify_ConcurrentSingleSuccess(t *testing.T) {
	s := New(3)

	token, pin, err := s.Create("/tmp/scan.pdf", time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}

	const racers = 32
	var wg sync.WaitGroup
	results := make(chan State, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Verify(token, pin).State
		}()
	}
	wg.Wait()
	close(results)

	success, used := 0, 0
	for st := range results {
		switch st {
		case StateSuccess:
			success++
		case StateUsed:
			used++
		default:
			t.Errorf("Неожиданное состояние: %s", st)
		}
	}

	if success != 1 {
		t.Errorf("Success: хотели ровно 1, получили %d", success)
	}
	if used != racers-1 {
		t.Errorf("Used: хотели %d, получили %d", racers-1, used)
	}
}

func TestVerify_ConcurrentWithSweep(t *testing.T) {
	s := New(3)

	// Токен истекает «сейчас»: гонка lazy expiry и sweep
	token, pin, err := s.Create("/tmp/scan.pdf", -time.Millisecond)
	if err != nil {
		t.Fatalf("Ошибка создания токена: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out := s.Verify(token, pin); out.State != StateAbsent {
				t.Errorf("Гонка verify/sweep: хотели %s, получили %s", StateAbsent, out.State)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Sweep(time.Now().UTC())
		}()
	}
	wg.Wait()

	if s.Len() != 0 {
		t.Errorf("После гонки: хранилище не пусто (%d)", s.Len())
	}
}

func TestGeneratePIN_FourDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		pin, err := generatePIN()
		if err != nil {
			t.Fatalf("Ошибка генерации PIN: %v", err)
		}
		if len(pin) != 4 {
			t.Fatalf("PIN %q: хотели 4 символа", pin)
		}
		for _, r := range pin {
			if r < '0' || r > '9' {
				t.Fatalf("PIN %q содержит не-цифру", pin)
			}
		}
	}
}
