// Package parser is the reference parse collaborator. It reads the
// line-oriented module interchange format the CLI driver uses and produces
// the syntax trees the engine consumes. Host compilers with real grammars
// replace this package entirely by injecting their own ParseFunc.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"declimp/internal/core/errors"
	"declimp/internal/lang"
)

// Instantiation is a driver-level instantiation request parsed from a
// module file: instantiate Target with the given concrete arguments.
type Instantiation struct {
	Target   string
	Args     []lang.Ref
	Location lang.Location
}

type ParseResult struct {
	Module         *lang.Module
	Instantiations []Instantiation
}

// ParseFile parses one module file.
func ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.CodeModuleNotFound, "module file not found")
		}
		return nil, errors.Wrap(err, errors.CodeParseError, "open module file")
	}
	defer f.Close()
	return Parse(path, f)
}

// Parse reads the interchange format:
//
//	module a.b.c
//	import x.y [as alias]
//
//	decl NAME | generic NAME [T, U]
//	  import x.y [as alias]
//	  use <ref> | use! <ref>
//	  constraint <ref>
//
//	inst NAME <arg> <arg>...
//
// use! marks a reference that is used as a value, forcing generic targets
// to resolve. '#' starts a comment.
func Parse(path string, r io.Reader) (*ParseResult, error) {
	res := &ParseResult{
		Module: &lang.Module{ParsedAt: time.Now()},
	}

	var current *lang.Declaration
	flush := func() {
		if current != nil {
			res.Module.Declarations = append(res.Module.Declarations, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		loc := lang.Location{File: path, Line: lineNo}

		fields := strings.Fields(line)
		keyword := fields[0]

		if indented {
			if current == nil {
				return nil, parseErr(path, lineNo, "body line outside a declaration block")
			}
			switch keyword {
			case "import":
				imp, err := parseImport(fields[1:], loc)
				if err != nil {
					return nil, errors.AddContext(err, errors.CtxModule, path)
				}
				current.LocalImports = append(current.LocalImports, imp)
			case "use", "use!":
				if len(fields) != 2 {
					return nil, parseErr(path, lineNo, "use takes exactly one reference")
				}
				ref := parseRef(fields[1], loc)
				ref.ForceEval = keyword == "use!"
				current.Refs = append(current.Refs, ref)
			case "constraint":
				if len(fields) != 2 {
					return nil, parseErr(path, lineNo, "constraint takes exactly one reference")
				}
				current.Constraints = append(current.Constraints, parseRef(fields[1], loc))
			default:
				return nil, parseErr(path, lineNo, "unknown body keyword %q", keyword)
			}
			continue
		}

		switch keyword {
		case "module":
			if len(fields) != 2 {
				return nil, parseErr(path, lineNo, "module takes exactly one dotted path")
			}
			if len(res.Module.Path) > 0 {
				return nil, parseErr(path, lineNo, "duplicate module header")
			}
			mp := lang.ParseModulePath(fields[1])
			if mp == nil {
				return nil, parseErr(path, lineNo, "invalid module path %q", fields[1])
			}
			res.Module.Path = mp
		case "import":
			flush()
			imp, err := parseImport(fields[1:], loc)
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxModule, path)
			}
			res.Module.Imports = append(res.Module.Imports, imp)
		case "decl":
			flush()
			if len(fields) != 2 {
				return nil, parseErr(path, lineNo, "decl takes exactly one name")
			}
			current = &lang.Declaration{Name: fields[1], Kind: lang.KindPlain, Location: loc}
		case "generic":
			flush()
			name, params, err := parseGenericHeader(fields[1:])
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxModule, path)
			}
			current = &lang.Declaration{
				Name:       name,
				Kind:       lang.KindGeneric,
				TypeParams: params,
				Location:   loc,
			}
		case "inst":
			flush()
			if len(fields) < 3 {
				return nil, parseErr(path, lineNo, "inst takes a target name and at least one argument")
			}
			inst := Instantiation{Target: fields[1], Location: loc}
			for _, arg := range fields[2:] {
				inst.Args = append(inst.Args, parseRef(arg, loc))
			}
			res.Instantiations = append(res.Instantiations, inst)
		default:
			return nil, parseErr(path, lineNo, "unknown keyword %q", keyword)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeParseError, "read module file")
	}
	if len(res.Module.Path) == 0 {
		return nil, parseErr(path, 0, "missing module header")
	}
	return res, nil
}

func parseErr(path string, line int, format string, args ...interface{}) error {
	err := errors.Newf(errors.CodeParseError, format, args...)
	err = errors.AddContext(err, errors.CtxModule, path)
	return errors.AddContext(err, "line", line)
}

func parseImport(fields []string, loc lang.Location) (lang.Import, error) {
	switch len(fields) {
	case 1:
		mp := lang.ParseModulePath(fields[0])
		if mp == nil {
			return lang.Import{}, errors.Newf(errors.CodeParseError, "invalid import path %q", fields[0])
		}
		return lang.Import{Module: mp, Location: loc}, nil
	case 3:
		if fields[1] != "as" {
			return lang.Import{}, errors.Newf(errors.CodeParseError, "expected 'as' in import alias form")
		}
		mp := lang.ParseModulePath(fields[0])
		if mp == nil {
			return lang.Import{}, errors.Newf(errors.CodeParseError, "invalid import path %q", fields[0])
		}
		return lang.Import{Module: mp, Alias: fields[2], Location: loc}, nil
	default:
		return lang.Import{}, errors.Newf(errors.CodeParseError, "import takes a path with an optional alias")
	}
}

// parseGenericHeader parses "NAME [T, U]" after the generic keyword.
func parseGenericHeader(fields []string) (string, []string, error) {
	if len(fields) == 0 {
		return "", nil, errors.Newf(errors.CodeParseError, "generic takes a name and a parameter list")
	}
	name := fields[0]
	rest := strings.Join(fields[1:], " ")
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
		return "", nil, errors.Newf(errors.CodeParseError, "generic %q needs a bracketed parameter list", name)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(rest, "["), "]")
	params := make([]string, 0, 2)
	for _, p := range strings.Split(inner, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return "", nil, errors.Newf(errors.CodeParseError, "generic %q has an empty parameter list", name)
	}
	return name, params, nil
}

// parseRef turns a dotted reference string into a Ref, splitting the
// qualifier at the last dot. The resolver re-segments against the registry,
// so the exact split point here does not have to match module boundaries.
func parseRef(s string, loc lang.Location) lang.Ref {
	mod, name := lang.SplitRef(s)
	return lang.Ref{Name: name, Module: mod, Location: loc}
}
