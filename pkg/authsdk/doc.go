/*
Package authsdk is a Go client for the stepup authentication service, plus
the request, response and error types shared with the server.

# Flow

The client behaves like a browser: the session cookie set by Login is kept in
the client's cookie jar and sent on every later call.

	client := authsdk.NewSDKClient("http://localhost:5000")

	_, err := client.Register(ctx, "alice", "correct-horse")
	login, err := client.Login(ctx, "alice", "correct-horse")

	setup, err := client.SetupMFA(ctx)
	// show setup.QRCode to the user, read the code from their authenticator
	verify, err := client.VerifyMFA(ctx, "123456")

	// verify.Token is the step-up token; present it as a bearer token
	claims, err := client.IntrospectStepUp(ctx, verify.Token)

# Errors

Every non-2xx response is returned as an *APIError. The predefined errors
compare with errors.Is on status and code:

	if errors.Is(err, authsdk.ErrInvalidCode) {
		// wrong TOTP code, ask again
	}
*/
package authsdk
