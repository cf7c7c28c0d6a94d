package nut

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestCompiler(t *testing.T, opts Options) *Compiler {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// wrapFilter nests each name around the expression as a call.
var wrapFilter = FilterFunc(func(names []string, expr string) (string, error) {
	for _, name := range names {
		expr = name + "(" + expr + ")"
	}
	return expr, nil
})

func TestCompile(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "plain text",
			src:  "no tags here\n{ braces } @ and -- dashes",
			want: "no tags here\n{ braces } @ and -- dashes",
		},
		{
			name: "content",
			src:  "Hello {{ name }}!",
			want: "Hello <?php echo $name ?>!",
		},
		{
			name: "content without spaces",
			src:  "{{user.name}}",
			want: "<?php echo $user->name ?>",
		},
		{
			name: "content that matches nothing",
			src:  "{{ 'open }}",
			want: "<?php echo '' ?>",
		},
		{
			name: "filters apply left to right",
			src:  "{{ name|upper trim }}",
			want: "<?php echo trim(upper($name)) ?>",
		},
		{
			name: "if else",
			src:  "{@if:user.active}Yes{@else}No{@endif}",
			want: "<?php if($user->active) { ?>Yes<?php } else { ?>No<?php } ?>",
		},
		{
			name: "elseif",
			src:  "{@if:a}1{@elseif:user.age >= 18}2{@endif}",
			want: "<?php if($a) { ?>1<?php } elseif($user->age >= 18) { ?>2<?php } ?>",
		},
		{
			name: "for",
			src:  "{@for:item in items}{{ item }}{@endfor}",
			want: "<?php if($items && !empty($items)) foreach($items as $item) { ?><?php echo $item ?><?php } ?>",
		},
		{
			name: "for with key and value",
			src:  "{@for:key, value in user.roles}{@end}",
			want: "<?php if($user->roles && !empty($user->roles)) foreach($user->roles as $key => $value) { ?><?php } ?>",
		},
		{
			name: "malformed for is inert",
			src:  "{@for:bogus}",
			want: "<?php /* cannot compile for: bogus */ ?>",
		},
		{
			name: "switch",
			src:  "{@switch:status}{@case:'a'}A{@case:'b'}B{@endswitch}",
			want: "<?php if($status == 'a') { ?>A<?php } if($status == 'b') { ?>B<?php } ?>",
		},
		{
			name: "nested switch",
			src:  "{@switch:a}{@case:1}{@switch:b}{@case:2}x{@endswitch}{@endswitch}",
			want: "<?php if($a == 1) { ?><?php if($b == 2) { ?>x<?php } ?><?php } ?>",
		},
		{
			name: "switch without cases",
			src:  "{@switch:a}{@endswitch}",
			want: "<?php } ?>",
		},
		{
			name: "set",
			src:  "{@set:title = 'Home'}",
			want: "<?php if(!isset($title)) { $title = 'Home'; } ?>",
		},
		{
			name: "reset",
			src:  "{@reset:count = count + 1}",
			want: "<?php $count = $count + 1; ?>",
		},
		{
			name: "sections",
			src:  "{@section:body}hi{@endsection}{@show}",
			want: "<?php $this->sectionStart('body'); ?>hi<?php $this->sectionEnd(); ?><?php $this->showSection(); ?>",
		},
		{
			name: "include",
			src:  "{@include:partials.header}",
			want: "<?php echo $this->factory->make('partials.header')->render(); ?>",
		},
		{
			name: "quoted names are escaped",
			src:  `{@include:"it's"}`,
			want: `<?php echo $this->factory->make('it\'s')->render(); ?>`,
		},
		{
			name: "layout appends render call",
			src:  "{@layout:main}body",
			want: "<?php $this->layout('main'); ?>body\n\n<?php $this->renderLayout($this->data); ?>",
		},
		{
			name: "comment hides tags",
			src:  "a{{-- hidden {{ x }} {@if:y} --}}b",
			want: "a<?php /* hidden {{ x }} {@if:y} */ ?>b",
		},
		{
			name: "comment cannot close the host block",
			src:  "{{-- a */ b ?> c --}}",
			want: "<?php /* a * / b ? > c */ ?>",
		},
		{
			name: "empty comment",
			src:  "{{----}}",
			want: "<?php /**/ ?>",
		},
		{
			name: "literal marker bytes",
			src:  "raw \x1a3\x1a bytes",
			want: "raw \x1a3\x1a bytes",
		},
		{
			name: "literal marker bytes beside a comment",
			src:  "{{-- c --}} and \x1a0\x1a",
			want: "<?php /* c */ ?> and \x1a0\x1a",
		},
		{
			name: "call leading an arithmetic chain",
			src:  "{{ count(items) + 1 }}{@set: a = f(b) + 1}",
			want: "<?php echo count($items) + 1 ?><?php if(!isset($a)) { $a = f($b) + 1; } ?>",
		},
		{
			name: "colon inside a quoted branch",
			src:  "{{ a ? 'x:y' : 'z' }}",
			want: "<?php echo $a ? 'x:y' : 'z' ?>",
		},
	}
	c := newTestCompiler(t, Options{Filter: wrapFilter})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Compile(tc.src)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tc.src, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Compile(%q) mismatch (-want +got):\n%s", tc.src, diff)
			}
		})
	}
}

func TestCompileIsIdempotentOnPlainText(t *testing.T) {
	c := newTestCompiler(t, Options{})
	src := "just text, {single} braces and @ signs\n"
	once, err := c.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	twice, err := c.Compile(once)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if once != src || twice != src {
		t.Fatalf("plain text changed: %q then %q", once, twice)
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name   string
		src    string
		strict bool
		filter Filter
		target error
	}{
		{name: "unknown directive", src: "{@bogus:x}", target: ErrUnknownDirective},
		{name: "case outside switch", src: "{@case:1}", target: ErrMisplacedDirective},
		{name: "endswitch outside switch", src: "x{@endswitch}", target: ErrMisplacedDirective},
		{name: "strict malformed for", src: "{@for:bogus}", strict: true, target: ErrMalformedDirective},
		{name: "strict set without value", src: "{@set:x}", strict: true, target: ErrMalformedDirective},
		{name: "strict empty include", src: "{@include: }", strict: true, target: ErrMalformedDirective},
		{name: "filter without collaborator", src: "{{ name|upper }}", target: ErrNoFilter},
		{
			name:   "filter failure",
			src:    "{{ name|nope }}",
			filter: FilterFunc(func([]string, string) (string, error) { return "", errors.New("boom") }),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCompiler(t, Options{Strict: tc.strict, Filter: tc.filter})
			_, err := c.Compile(tc.src)
			if err == nil {
				t.Fatalf("Compile(%q) succeeded, want error", tc.src)
			}
			if tc.target != nil && !errors.Is(err, tc.target) {
				t.Fatalf("Compile(%q) error = %v, want %v", tc.src, err, tc.target)
			}
		})
	}
}

func TestErrorPositions(t *testing.T) {
	c := newTestCompiler(t, Options{Strict: true})

	_, err := c.Compile("line one\n  {@nope}")
	var unknown *UnknownDirectiveError
	if !errors.As(err, &unknown) {
		t.Fatalf("want *UnknownDirectiveError, got %v", err)
	}
	if diff := cmp.Diff(UnknownDirectiveError{Name: "nope", Pos: Position{Line: 2, Column: 3}}, *unknown); diff != "" {
		t.Fatalf("error mismatch (-want +got):\n%s", diff)
	}

	// A multi-line comment before the tag does not shift the line.
	_, err = c.Compile("{{-- one\ntwo --}}\n{@for:x}")
	var malformed *MalformedDirectiveError
	if !errors.As(err, &malformed) {
		t.Fatalf("want *MalformedDirectiveError, got %v", err)
	}
	if malformed.Pos.Line != 3 || malformed.Directive != "for" || malformed.Raw != "x" {
		t.Fatalf("unexpected error %+v", malformed)
	}

	// Columns count the comment as written, not its placeholder.
	_, err = c.Compile("{{ a }} {{-- x --}} {@bogus}")
	if !errors.As(err, &unknown) {
		t.Fatalf("want *UnknownDirectiveError, got %v", err)
	}
	if unknown.Pos != (Position{Line: 1, Column: 21}) {
		t.Fatalf("got position %s, want 1:21", unknown.Pos)
	}

	// Content tags are located in the source, before directives expand.
	_, err = c.Compile("{@if:\na}\n{{ x|upper }}{@endif}")
	if !errors.Is(err, ErrNoFilter) || !strings.Contains(err.Error(), "3:1:") {
		t.Fatalf("want ErrNoFilter at 3:1, got %v", err)
	}
}

func TestCompileTemplateResult(t *testing.T) {
	c := newTestCompiler(t, Options{})
	src := "{@layout:'layouts.main'}{@section:title}T{@endsection}{@section:body}{@include:nav}{@include:footer}{@endsection}"
	res, err := c.CompileTemplate(src)
	if err != nil {
		t.Fatalf("CompileTemplate: %v", err)
	}
	want := &Result{
		Code:     res.Code,
		Layout:   "layouts.main",
		Includes: []string{"nav", "footer"},
		Sections: []string{"title", "body"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(res.Code, layoutTrailer) {
		t.Fatalf("layout trailer missing from %q", res.Code)
	}
}

func TestLayoutStateDoesNotLeak(t *testing.T) {
	c := newTestCompiler(t, Options{})
	if _, err := c.Compile("{@layout:main}"); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := c.Compile("{@switch:a}{@case:1}x")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if strings.Contains(got, "renderLayout") {
		t.Fatalf("layout flag leaked into next compilation: %q", got)
	}
	// The unterminated switch above must not make this case valid.
	if _, err := c.Compile("{@case:1}"); !errors.Is(err, ErrMisplacedDirective) {
		t.Fatalf("switch state leaked: %v", err)
	}
}

func TestCustomTags(t *testing.T) {
	c := newTestCompiler(t, Options{Tags: TagSet{
		Content:   Delims{Open: "<%", Close: "%>"},
		Directive: Delims{Open: "<@", Close: "@>"},
		Comment:   Delims{Open: "<#", Close: "#>"},
	}})
	got, err := c.Compile("<# note #><@if:x@><% name %><@endif@>{{ name }}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := "<?php /* note */ ?><?php if($x) { ?><?php echo $name ?><?php } ?>{{ name }}"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidTags(t *testing.T) {
	cases := map[string]TagSet{
		"directive shares content opener": {
			Content:   Delims{Open: "{{", Close: "}}"},
			Directive: Delims{Open: "{{", Close: "}"},
			Comment:   Delims{Open: "{#", Close: "#}"},
		},
		"empty close": {
			Content:   Delims{Open: "{{", Close: ""},
			Directive: Delims{Open: "{@", Close: "}"},
			Comment:   Delims{Open: "{#", Close: "#}"},
		},
		"comment equals content": {
			Content:   Delims{Open: "{{", Close: "}}"},
			Directive: Delims{Open: "{@", Close: "}"},
			Comment:   Delims{Open: "{{", Close: "}}"},
		},
	}
	for name, tags := range cases {
		if _, err := New(Options{Tags: tags}); err == nil {
			t.Errorf("%s: New succeeded, want error", name)
		}
	}
}

func TestConcurrentCompile(t *testing.T) {
	c := newTestCompiler(t, Options{})
	srcs := []string{
		"{@layout:main}{{ a }}",
		"{@switch:s}{@case:1}one{@endswitch}",
		"{@for:x in xs}{{ x.name }}{@endfor}",
	}
	want := make([]string, len(srcs))
	for i, src := range srcs {
		out, err := c.Compile(src)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		want[i] = out
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for n := 0; n < 64; n++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.Compile(srcs[i])
			if err != nil {
				errs <- err
				return
			}
			if out != want[i] {
				errs <- errors.New("got " + out + ", want " + want[i])
			}
		}(n % len(srcs))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDirectives(t *testing.T) {
	want := []string{
		"case", "else", "elseif", "end", "endfor", "endif", "endsection", "endswitch",
		"for", "if", "include", "layout", "reset", "section", "set", "show", "switch",
	}
	if diff := cmp.Diff(want, Directives()); diff != "" {
		t.Fatalf("Directives mismatch (-want +got):\n%s", diff)
	}
}
