package listing

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
)

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{"abc1", true},
		{".L12", true},
		{"G_count", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
		{"%rax", false},
	}
	for _, tc := range tests {
		if got := isIdentifier(tc.input); got != tc.want {
			t.Errorf("isIdentifier(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Line
		wantErr bool
	}{
		{
			"    movq $1, %rax",
			Line{No: 1, Mnemonic: "movq", Operands: []string{"$1", "%rax"}},
			false,
		},
		{
			"    movq %rax, -8(%rbp)",
			Line{No: 1, Mnemonic: "movq", Operands: []string{"%rax", "-8(%rbp)"}},
			false,
		},
		{
			"    movq G_x(%rip), %rax # load x",
			Line{No: 1, Mnemonic: "movq", Operands: []string{"G_x(%rip)", "%rax"}},
			false,
		},
		{
			"main:",
			Line{No: 1, Labels: []string{"main"}},
			false,
		},
		{
			".L1: .L2: ret",
			Line{No: 1, Labels: []string{".L1", ".L2"}, Mnemonic: "ret"},
			false,
		},
		{
			"\tcqto",
			Line{No: 1, Mnemonic: "cqto"},
			false,
		},
		{
			`    .string "a, b: \"c\"\n"`,
			Line{No: 1, Mnemonic: ".string", Operands: []string{"a, b: \"c\"\n"}},
			false,
		},
		{
			`    .string "\303\251"`,
			Line{No: 1, Mnemonic: ".string", Operands: []string{"é"}},
			false,
		},
		{
			`    .section .note.GNU-stack,"",@progbits`,
			Line{No: 1, Mnemonic: ".section", Operands: []string{".note.GNU-stack", `""`, "@progbits"}},
			false,
		},
		{
			"    # print x",
			Line{No: 1},
			false,
		},
		// Invalid cases
		{"1abc: ret", Line{No: 1}, true},
		{`    .string "unterminated`, Line{No: 1}, true},
		{"    .string missing_quote", Line{No: 1}, true},
	}

	for _, tc := range tests {
		got, err := parseLine(tc.line, 1)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseLine(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseLine(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestStripComment(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"$1, %rax", "$1, %rax"},
		{"$1, %rax # one", "$1, %rax "},
		{`"#", x # c`, `"#", x `},
		{"# all", ""},
	}
	for _, tc := range tests {
		if got := stripComment(tc.input); got != tc.want {
			t.Errorf("stripComment(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

var validListing = heredoc.Doc(`
	    .data
	G_x:
	    .quad 0
	    .section .rodata
	.Lfmt_int:
	    .string "%ld\n"
	    .text

	    .globl main
	main:
	.L1:
	    pushq %rbp
	    movq %rsp, %rbp
	    # x = 1
	    movq $1, %rax
	    movq %rax, G_x(%rip)
	    cmpq $0, %rax
	    je .L3
	    movq G_x(%rip), %rsi
	    leaq .Lfmt_int(%rip), %rdi
	    xorl %eax, %eax
	    call printf
	.L3:
	    movq $0, %rax
	.L2:
	    movq %rbp, %rsp
	    popq %rbp
	    ret

	    .section .note.GNU-stack,"",@progbits
`)

func TestCheckValidListing(t *testing.T) {
	if err := Check(validListing); err != nil {
		t.Fatalf("Check() = %v", err)
	}

	l, err := Parse(validListing)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if got := l.Instructions(); got != 14 {
		t.Errorf("Instructions() = %d, want 14", got)
	}
	for _, label := range []string{"G_x", ".Lfmt_int", "main", ".L1", ".L2", ".L3"} {
		if _, ok := l.Labels[label]; !ok {
			t.Errorf("label %s not recorded", label)
		}
	}
	if got := l.Labels["main"]; got != 10 {
		t.Errorf("main defined on line %d, want 10", got)
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		externals []string
		line      int
		msg       string
	}{
		{"duplicate label", "a:\n    ret\na:", nil, 3, `duplicate label "a" (first defined on line 1)`},
		{"undefined jump", "main:\n    jmp .L9", nil, 2, `undefined label ".L9"`},
		{"undefined data", "    leaq .Lstr0(%rip), %rax", nil, 1, `undefined label ".Lstr0"`},
		{"unknown instruction", "    mov %rax, %rbx", nil, 1, `unknown instruction "mov"`},
		{"unknown directive", "    .align 8", nil, 1, "unknown directive .align"},
		{"external not listed", "    call printf", []string{"puts"}, 1, `undefined label "printf"`},
		{"invalid label", "9lives: ret", nil, 1, `invalid label "9lives"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.code, tt.externals...)
			var lerr *Error
			if !errors.As(err, &lerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if lerr.Line != tt.line {
				t.Errorf("Line = %d, want %d", lerr.Line, tt.line)
			}
			if !strings.Contains(lerr.Msg, tt.msg) {
				t.Errorf("Msg = %q, want it to contain %q", lerr.Msg, tt.msg)
			}
		})
	}
}

func TestCheckExternals(t *testing.T) {
	code := "main:\n    call puts\n    ret"
	if err := Check(code); err == nil {
		t.Error("puts accepted without being external")
	}
	if err := Check(code, "puts"); err != nil {
		t.Errorf("Check(puts) = %v", err)
	}
}
