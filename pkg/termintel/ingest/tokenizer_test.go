package ingest

import (
	"reflect"
	"testing"
)

func TestTokenizerBasic(t *testing.T) {
	tokenizer := NewDefaultTokenizer()

	tokens := tokenizer.Tokenize("The best case for an iPhone 15")
	expected := []string{"best", "case", "iphone", "15"}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Tokenize = %v, want %v", tokens, expected)
	}
}

func TestTokenizerSeparators(t *testing.T) {
	tokenizer := NewTokenizer([]string{})

	cases := []struct {
		in   string
		want []string
	}{
		{"usb-c charger", []string{"usb", "charger"}},
		{"kids' headphones!!", []string{"kids", "headphones"}},
		{"earbuds,wireless/bluetooth", []string{"earbuds", "wireless", "bluetooth"}},
		{"tab\tand\nnewline", []string{"tab", "and", "newline"}},
		{"café", []string{"caf"}},
	}
	for _, tc := range cases {
		got := tokenizer.Tokenize(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTokenizerDropsShortTokens(t *testing.T) {
	tokenizer := NewTokenizer([]string{})

	tokens := tokenizer.Tokenize("x box 4 k tv")
	expected := []string{"box", "tv"}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Tokenize = %v, want %v", tokens, expected)
	}
}

func TestTokenizerCaseNormalization(t *testing.T) {
	tokenizer := NewTokenizer([]string{"THE"})

	tokens := tokenizer.Tokenize("THE Wireless EARBUDS")
	expected := []string{"wireless", "earbuds"}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Tokenize = %v, want %v", tokens, expected)
	}
}

func TestAddRemoveStopword(t *testing.T) {
	tokenizer := NewTokenizer([]string{"for"})

	tokens := tokenizer.Tokenize("case for phone")
	if len(tokens) != 2 {
		t.Fatalf("Should filter 'for', got %v", tokens)
	}

	tokenizer.RemoveStopword("for")
	tokens = tokenizer.Tokenize("case for phone")
	if len(tokens) != 3 {
		t.Errorf("'for' should not be filtered after removal, got %v", tokens)
	}

	tokenizer.AddStopword("FOR")
	tokens = tokenizer.Tokenize("case for phone")
	if len(tokens) != 2 {
		t.Errorf("Should filter 'for' after re-adding, got %v", tokens)
	}
}

func TestTokenizerEmptyInput(t *testing.T) {
	tokenizer := NewDefaultTokenizer()

	for _, in := range []string{"", "   ", "!!! ---", "a the of"} {
		if tokens := tokenizer.Tokenize(in); len(tokens) != 0 {
			t.Errorf("Tokenize(%q) = %v, want empty", in, tokens)
		}
	}
}

func TestTokenizerDeterministic(t *testing.T) {
	tokenizer := NewDefaultTokenizer()
	first := tokenizer.Tokenize("Noise Cancelling Headphones for Kids")
	for i := 0; i < 5; i++ {
		if got := tokenizer.Tokenize("Noise Cancelling Headphones for Kids"); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v != %v", i, got, first)
		}
	}
}
