package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// Classifier categories. Only CategoryFilter and CategoryTransform route a key
// to the filter stage; every other category, including unknown ones, routes
// to the build stage.
const (
	CategoryBuild     = "build"
	CategoryFilter    = "filter"
	CategoryTransform = "transform"
)

// Classifier maps a parameter key to a category and the key name the stage
// should see.
type Classifier func(key string) (category, name string, err error)

// Context is the classified view of one parameter map.
type Context struct {
	// Preprocessing goes to the Builder.
	Preprocessing Params
	// Filtering goes to the Transformer.
	Filtering Params
	// Raw is a copy of the input.
	Raw Params
}

// FromParams classifies params. A nil classifier routes every key to the build
// stage unchanged. A key whose classifier call fails or panics is routed to
// the build stage under its original name and classification continues.
func FromParams(params Params, classify Classifier, log logr.Logger) Context {
	pc := Context{
		Preprocessing: Params{},
		Filtering:     Params{},
		Raw:           params.Clone(),
	}
	if classify == nil {
		pc.Preprocessing = params.Clone()
		return pc
	}
	for _, key := range params.Keys() {
		value := params[key]
		category, name, err := safeClassify(classify, key)
		if err != nil {
			log.Info("classifier failed, routing to build stage", "key", key, "err", err.Error())
			pc.Preprocessing[key] = value
			continue
		}
		switch category {
		case CategoryFilter, CategoryTransform:
			pc.Filtering[name] = value
		default:
			pc.Preprocessing[name] = value
		}
	}
	return pc
}

func safeClassify(classify Classifier, key string) (category, name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return classify(key)
}

// DefaultClassifier splits on the first "__": "build__x" and "transform__x"
// map to their stage with name "x". Keys without "__" and unknown prefixes
// go to the build stage.
func DefaultClassifier(key string) (string, string, error) {
	prefix, name, found := strings.Cut(key, "__")
	if !found {
		return CategoryBuild, key, nil
	}
	switch prefix {
	case CategoryBuild, CategoryTransform, CategoryFilter:
		return prefix, name, nil
	}
	return CategoryBuild, name, nil
}

// NoClassifier routes every key to the build stage unchanged.
func NoClassifier(key string) (string, string, error) {
	return CategoryBuild, key, nil
}

// PrefixClassifier routes keys starting with filterPrefix to the filter stage
// and strips the matching prefix from either stage.
func PrefixClassifier(filterPrefix, buildPrefix string) Classifier {
	return func(key string) (string, string, error) {
		if filterPrefix != "" && strings.HasPrefix(key, filterPrefix) {
			return CategoryFilter, strings.TrimPrefix(key, filterPrefix), nil
		}
		if buildPrefix != "" && strings.HasPrefix(key, buildPrefix) {
			return CategoryBuild, strings.TrimPrefix(key, buildPrefix), nil
		}
		return CategoryBuild, key, nil
	}
}
