// Package jwt issues and verifies the bearer credential handed out after a
// successful login. The only application claim is the identity id; everything
// else is a registered claim.
package jwt
