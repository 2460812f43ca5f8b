package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

func extract(t *testing.T, source, language string) *ExtractionResult {
	t.Helper()
	result, err := NewTreeSitterExtractor(nil).ExtractSymbols(context.Background(), []byte(source), language)
	require.NoError(t, err)
	return result
}

// memberOf finds the symbol called name declared in scope.
func memberOf(t *testing.T, symbols []Symbol, scope, name string) Symbol {
	t.Helper()
	for _, s := range symbols {
		if s.Name == name && s.Scope == scope {
			return s
		}
	}
	require.Failf(t, "symbol not found", "no symbol %q in scope %q: %+v", name, scope, symbols)
	return Symbol{}
}

func assertNoSymbol(t *testing.T, symbols []Symbol, names ...string) {
	t.Helper()
	for _, s := range symbols {
		assert.NotContains(t, names, s.Name)
	}
}

func symbolNamed(t *testing.T, symbols []Symbol, name string) Symbol {
	t.Helper()
	for _, s := range symbols {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "symbol not found", "no symbol %q in %+v", name, symbols)
	return Symbol{}
}

const goSource = `package server

// MaxConns limits open connections.
const MaxConns = 10

// Server handles requests.
type Server struct {
	addr string
}

// Handler serves one route.
type Handler interface {
	Serve() error
}

// NewServer creates a server
// listening on addr.
func NewServer(addr string) *Server {
	var local = 1
	_ = local
	return &Server{addr: addr}
}

func (s *Server) Start() error {
	return nil
}
`

func TestTreeSitterExtractor_Go(t *testing.T) {
	// Given: Go source with a const, struct, interface, function and method
	// When: extracting symbols
	result := extract(t, goSource, "go")

	// Then: each declaration is found with its type, lines and docs
	assert.False(t, result.HasError)

	c := symbolNamed(t, result.Symbols, "MaxConns")
	assert.Equal(t, SymbolTypeConstant, c.Type)
	assert.Equal(t, "MaxConns limits open connections.", c.Docstring)

	s := symbolNamed(t, result.Symbols, "Server")
	assert.Equal(t, SymbolTypeType, s.Type)
	assert.Equal(t, 7, s.LineStart)
	assert.Equal(t, 9, s.LineEnd)

	h := symbolNamed(t, result.Symbols, "Handler")
	assert.Equal(t, SymbolTypeInterface, h.Type)

	f := symbolNamed(t, result.Symbols, "NewServer")
	assert.Equal(t, SymbolTypeFunction, f.Type)
	assert.Equal(t, "NewServer creates a server\nlistening on addr.", f.Docstring)
	assert.Equal(t, "func NewServer(addr string) *Server", f.Signature)
	assert.Equal(t, 18, f.LineStart)
	assert.Equal(t, 22, f.LineEnd)

	m := symbolNamed(t, result.Symbols, "Start")
	assert.Equal(t, SymbolTypeMethod, m.Type)
	assert.Equal(t, "Server", m.Scope)
	assert.Empty(t, m.Docstring)

	// And: function locals are not symbols
	for _, sym := range result.Symbols {
		assert.NotEqual(t, "local", sym.Name)
	}
}

func TestTreeSitterExtractor_Python(t *testing.T) {
	source := `MAX_RETRIES = 3
timeout = 5

class Client:
    """HTTP client."""

    def fetch(self, url):
        """Fetch a URL."""
        retries = 0
        return url

def main():
    pass
`
	result := extract(t, source, "python")

	assert.Equal(t, SymbolTypeConstant, symbolNamed(t, result.Symbols, "MAX_RETRIES").Type)
	assert.Equal(t, SymbolTypeVariable, symbolNamed(t, result.Symbols, "timeout").Type)

	client := symbolNamed(t, result.Symbols, "Client")
	assert.Equal(t, SymbolTypeClass, client.Type)
	assert.Equal(t, "HTTP client.", client.Docstring)

	fetch := symbolNamed(t, result.Symbols, "fetch")
	assert.Equal(t, SymbolTypeMethod, fetch.Type)
	assert.Equal(t, "Client", fetch.Scope)
	assert.Equal(t, "Fetch a URL.", fetch.Docstring)
	assert.Equal(t, 7, fetch.LineStart)

	mainFn := symbolNamed(t, result.Symbols, "main")
	assert.Equal(t, SymbolTypeFunction, mainFn.Type)
	assert.Empty(t, mainFn.Scope)

	for _, sym := range result.Symbols {
		assert.NotEqual(t, "retries", sym.Name)
	}
}

func TestTreeSitterExtractor_TypeScript(t *testing.T) {
	source := `/** Greets people. */
export class Greeter {
  greet(name: string): string {
    return "hi " + name;
  }
}

export interface Options {
  verbose: boolean;
}

export const format = (s: string) => s.trim();

const LIMIT = 5;
`
	result := extract(t, source, "typescript")

	greeter := symbolNamed(t, result.Symbols, "Greeter")
	assert.Equal(t, SymbolTypeClass, greeter.Type)

	greet := symbolNamed(t, result.Symbols, "greet")
	assert.Equal(t, SymbolTypeMethod, greet.Type)
	assert.Equal(t, "Greeter", greet.Scope)

	assert.Equal(t, SymbolTypeInterface, symbolNamed(t, result.Symbols, "Options").Type)
	assert.Equal(t, SymbolTypeFunction, symbolNamed(t, result.Symbols, "format").Type)
	assert.Equal(t, SymbolTypeConstant, symbolNamed(t, result.Symbols, "LIMIT").Type)
}

func TestTreeSitterExtractor_JavaScript(t *testing.T) {
	source := `// Adds numbers.
function add(a, b) {
  return a + b;
}

let counter = 0;
`
	result := extract(t, source, "javascript")

	add := symbolNamed(t, result.Symbols, "add")
	assert.Equal(t, SymbolTypeFunction, add.Type)
	assert.Equal(t, "Adds numbers.", add.Docstring)
	assert.Equal(t, SymbolTypeVariable, symbolNamed(t, result.Symbols, "counter").Type)
}

func TestTreeSitterExtractor_SyntaxError(t *testing.T) {
	// Given: Go with a broken declaration after a valid one
	source := "package x\n\nfunc ok() {}\n\nfunc broken( {\n"

	// When: extracting
	result := extract(t, source, "go")

	// Then: the error is flagged and the valid symbol survives
	assert.True(t, result.HasError)
	symbolNamed(t, result.Symbols, "ok")
}

func TestTreeSitterExtractor_UnknownLanguage(t *testing.T) {
	_, err := NewTreeSitterExtractor(nil).ExtractSymbols(context.Background(), []byte("x"), "cobol")

	assert.Equal(t, herrors.ErrCodeExtractFailed, herrors.GetCode(err))
}

func TestLanguageForPath(t *testing.T) {
	tests := map[string]string{
		"main.go":          "go",
		"src/User.java":    "java",
		"lib/util.c":       "c",
		"include/util.h":   "c",
		"engine.cpp":       "cpp",
		"engine.HPP":       "cpp",
		"src/lib.rs":       "rust",
		"lib/util.py":      "python",
		"app.JS":           "javascript",
		"view.jsx":         "jsx",
		"index.ts":         "typescript",
		"page.tsx":         "tsx",
		"README.md":        "markdown",
		"docs/guide.mdx":   "markdown",
		"Makefile":         "",
		"data/config.yaml": "",
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, LanguageForPath(path))
		})
	}
	assert.Equal(t, []string{"c", "cpp", "go", "java", "javascript", "jsx", "python", "rust", "tsx", "typescript"},
		DefaultRegistry().Languages())
}

const javaSource = `package com.example;

import java.util.List;

/**
 * User data class
 */
public class User {
    private int id;
    public static final int MAX_USERS = 100;

    public User(int id) {
        this.id = id;
    }

    public int getId() {
        int local = id;
        return local;
    }
}

/**
 * Repository interface
 */
interface Repository {
    void save(User user);
}

public class UserManager implements Repository {
    @Override
    public void save(User user) {
    }

    /**
     * Calculate total sum
     * @param items prices
     */
    public static double calculateTotal(List<Double> items) {
        return 0;
    }
}
`

func TestTreeSitterExtractor_Java(t *testing.T) {
	// Given: Java classes, an interface, a constructor and a constant
	// When: extracting symbols
	result := extract(t, javaSource, "java")

	// Then: classes carry their javadoc
	assert.False(t, result.HasError)
	user := memberOf(t, result.Symbols, "", "User")
	assert.Equal(t, SymbolTypeClass, user.Type)
	assert.Equal(t, "User data class", user.Docstring)
	assert.Equal(t, 8, user.LineStart)
	assert.Equal(t, 20, user.LineEnd)

	// And: members are scoped to their class
	ctor := memberOf(t, result.Symbols, "User", "User")
	assert.Equal(t, SymbolTypeMethod, ctor.Type)
	getID := memberOf(t, result.Symbols, "User", "getId")
	assert.Equal(t, SymbolTypeMethod, getID.Type)
	assert.Equal(t, "public int getId()", getID.Signature)
	assert.Equal(t, SymbolTypeConstant, memberOf(t, result.Symbols, "User", "MAX_USERS").Type)

	repo := symbolNamed(t, result.Symbols, "Repository")
	assert.Equal(t, SymbolTypeInterface, repo.Type)
	assert.Equal(t, "Repository interface", repo.Docstring)
	assert.Equal(t, SymbolTypeMethod, memberOf(t, result.Symbols, "Repository", "save").Type)
	assert.Equal(t, SymbolTypeMethod, memberOf(t, result.Symbols, "UserManager", "save").Type)

	total := memberOf(t, result.Symbols, "UserManager", "calculateTotal")
	assert.Equal(t, "Calculate total sum\n@param items prices", total.Docstring)

	// And: instance fields and locals are not symbols
	assertNoSymbol(t, result.Symbols, "id", "local")
}

const cSource = `#include <stdlib.h>

/**
 * User struct definition
 */
typedef struct {
    int id;
    char name[100];
} User;

struct Point {
    int x;
};

const int MAX_USERS = 100;
int active_users;
int addUser(User* users, int n);

/**
 * Create a new User
 */
User* createUser(int id) {
    User* u = (User*)malloc(sizeof(User));
    u->id = id;
    return u;
}

/**
 * Calculate total sum
 */
double calculateTotal(double* items, int count) {
    double total = 0.0;
    for (int i = 0; i < count; i++) {
        total += items[i];
    }
    return total;
}
`

func TestTreeSitterExtractor_C(t *testing.T) {
	// Given: C typedefs, a struct, globals, a prototype and functions
	// When: extracting symbols
	result := extract(t, cSource, "c")

	// Then: the typedef is a type named by its declarator
	assert.False(t, result.HasError)
	user := symbolNamed(t, result.Symbols, "User")
	assert.Equal(t, SymbolTypeType, user.Type)
	assert.Equal(t, 6, user.LineStart)
	assert.Equal(t, 9, user.LineEnd)
	assert.Equal(t, "User struct definition", user.Docstring)
	assert.Equal(t, SymbolTypeType, symbolNamed(t, result.Symbols, "Point").Type)

	// And: globals are split by const
	assert.Equal(t, SymbolTypeConstant, symbolNamed(t, result.Symbols, "MAX_USERS").Type)
	assert.Equal(t, SymbolTypeVariable, symbolNamed(t, result.Symbols, "active_users").Type)

	// And: functions are found through pointer declarators
	create := symbolNamed(t, result.Symbols, "createUser")
	assert.Equal(t, SymbolTypeFunction, create.Type)
	assert.Equal(t, "Create a new User", create.Docstring)
	total := symbolNamed(t, result.Symbols, "calculateTotal")
	assert.Equal(t, SymbolTypeFunction, total.Type)
	assert.Empty(t, total.Scope)

	// And: prototypes and locals are not symbols
	assertNoSymbol(t, result.Symbols, "addUser", "u", "total", "i")
}

const cppSource = `#include <vector>

namespace shop {

/**
 * Repository interface
 */
class Repository {
public:
    virtual void save(int id) = 0;
};

/*
 * UserManager class
 */
class UserManager : public Repository {
public:
    void save(int id) override {
        ids.push_back(id);
    }

    size_t count() const {
        return ids.size();
    }

    void reset();

private:
    std::vector<int> ids;
};

void UserManager::reset() {
    ids.clear();
}

/// Maximum retry attempts
const int MAX_RETRIES = 3;

// Template function
template<typename T>
T maxValue(T a, T b) {
    return (a > b) ? a : b;
}

} // namespace shop
`

func TestTreeSitterExtractor_Cpp(t *testing.T) {
	// Given: C++ classes in a namespace, inline and out-of-line methods
	// When: extracting symbols
	result := extract(t, cppSource, "cpp")

	// Then: classes are scoped to the namespace
	assert.False(t, result.HasError)
	repo := memberOf(t, result.Symbols, "shop", "Repository")
	assert.Equal(t, SymbolTypeClass, repo.Type)
	assert.Equal(t, "Repository interface", repo.Docstring)
	manager := memberOf(t, result.Symbols, "shop", "UserManager")
	assert.Equal(t, "UserManager class", manager.Docstring)

	// And: inline and qualified definitions are methods of their class
	for _, name := range []string{"save", "count", "reset"} {
		assert.Equal(t, SymbolTypeMethod, memberOf(t, result.Symbols, "shop.UserManager", name).Type, name)
	}

	// And: namespace functions stay functions
	maxValue := memberOf(t, result.Symbols, "shop", "maxValue")
	assert.Equal(t, SymbolTypeFunction, maxValue.Type)
	assert.Equal(t, "Template function", maxValue.Docstring)

	retries := memberOf(t, result.Symbols, "shop", "MAX_RETRIES")
	assert.Equal(t, SymbolTypeConstant, retries.Type)
	assert.Equal(t, "Maximum retry attempts", retries.Docstring)
}

const rustSource = `use std::collections::HashMap;

/// User struct definition
#[derive(Debug, Clone)]
pub struct User {
    pub id: u32,
}

/// Repository trait definition
pub trait Repository {
    fn save(&mut self, user: User) -> Result<(), String>;
}

/// UserManager struct
pub struct UserManager {
    users: HashMap<u32, User>,
}

impl UserManager {
    /// Create a new UserManager
    ///
    /// Starts empty.
    pub fn new() -> Self {
        UserManager { users: HashMap::new() }
    }
}

impl Default for UserManager {
    fn default() -> Self {
        Self::new()
    }
}

/*
 * Multi-line block comment
 * describing the total
 */
pub fn calculate_total(items: &[f64]) -> f64 {
    let total = items.iter().sum();
    total
}

/// Maximum retry attempts
pub const MAX_RETRIES: u32 = 3;

#[cfg(test)]
mod tests {
    #[test]
    fn test_user_manager() {}
}
`

func TestTreeSitterExtractor_Rust(t *testing.T) {
	// Given: Rust structs, a trait, impl blocks and a module
	// When: extracting symbols
	result := extract(t, rustSource, "rust")

	// Then: doc comments are read past attributes
	assert.False(t, result.HasError)
	user := symbolNamed(t, result.Symbols, "User")
	assert.Equal(t, SymbolTypeClass, user.Type)
	assert.Equal(t, "User struct definition", user.Docstring)

	assert.Equal(t, SymbolTypeInterface, symbolNamed(t, result.Symbols, "Repository").Type)
	assert.Equal(t, SymbolTypeMethod, memberOf(t, result.Symbols, "Repository", "save").Type)

	// And: impl block functions are methods of the implementing type
	newFn := memberOf(t, result.Symbols, "UserManager", "new")
	assert.Equal(t, SymbolTypeMethod, newFn.Type)
	assert.Equal(t, "Create a new UserManager\nStarts empty.", newFn.Docstring)
	assert.Equal(t, SymbolTypeMethod, memberOf(t, result.Symbols, "UserManager", "default").Type)

	total := memberOf(t, result.Symbols, "", "calculate_total")
	assert.Equal(t, SymbolTypeFunction, total.Type)
	assert.Equal(t, "Multi-line block comment\ndescribing the total", total.Docstring)

	retries := symbolNamed(t, result.Symbols, "MAX_RETRIES")
	assert.Equal(t, SymbolTypeConstant, retries.Type)
	assert.Equal(t, "Maximum retry attempts", retries.Docstring)

	// And: module functions stay functions scoped to the module
	testFn := memberOf(t, result.Symbols, "tests", "test_user_manager")
	assert.Equal(t, SymbolTypeFunction, testFn.Type)
	assert.Empty(t, testFn.Docstring)
	assertNoSymbol(t, result.Symbols, "total")
}

func TestTreeSitterExtractor_GoComments(t *testing.T) {
	source := `package main

// Single line comment before function

// Add performs addition of two integers
// Returns the sum of a and b
func Add(a int, b int) int {
	return a + b // End of line comment
}

/*
Multi-line block comment
describing the User struct
*/
type User struct {
	Name string // Field comment
}

// TODO: Implement user validation
func (u *User) Validate() bool {
	return len(u.Name) > 0
}

/*
FetchData retrieves data asynchronously

Returns an error when network request fails
*/
func FetchData() error {
	return nil
}
`
	result := extract(t, source, "go")

	assert.Equal(t, "Add performs addition of two integers\nReturns the sum of a and b",
		symbolNamed(t, result.Symbols, "Add").Docstring)
	assert.Equal(t, "Multi-line block comment\ndescribing the User struct",
		symbolNamed(t, result.Symbols, "User").Docstring)
	validate := memberOf(t, result.Symbols, "User", "Validate")
	assert.Equal(t, "TODO: Implement user validation", validate.Docstring)
	assert.Equal(t, "FetchData retrieves data asynchronously\nReturns an error when network request fails",
		symbolNamed(t, result.Symbols, "FetchData").Docstring)
}

func TestTreeSitterExtractor_PythonComments(t *testing.T) {
	source := `# Single line comment before function

def add(a: int, b: int) -> int:
    """
    Docstring for add function

    Returns:
        Sum of a and b
    """
    return a + b


class User:
    """
    Multi-line docstring
    describing the User class
    """

    def __init__(self, name: str):
        """Constructor docstring"""
        self.name = name

    # TODO: Implement user validation
    def validate(self) -> bool:
        return len(self.name) > 0


async def fetch_data() -> None:
    """Async function with docstring"""
    pass


MAX_RETRIES = 3  # Maximum retry attempts
`
	result := extract(t, source, "python")

	add := symbolNamed(t, result.Symbols, "add")
	assert.True(t, strings.HasPrefix(add.Docstring, "Docstring for add function"))
	assert.Contains(t, symbolNamed(t, result.Symbols, "User").Docstring, "describing the User class")

	ctor := memberOf(t, result.Symbols, "User", "__init__")
	assert.Equal(t, SymbolTypeMethod, ctor.Type)
	assert.Equal(t, "Constructor docstring", ctor.Docstring)
	assert.Empty(t, memberOf(t, result.Symbols, "User", "validate").Docstring)

	fetch := symbolNamed(t, result.Symbols, "fetch_data")
	assert.Equal(t, SymbolTypeFunction, fetch.Type)
	assert.Equal(t, "Async function with docstring", fetch.Docstring)
	assert.Equal(t, SymbolTypeConstant, symbolNamed(t, result.Symbols, "MAX_RETRIES").Type)
}
